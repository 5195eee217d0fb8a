package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) *academicRepository {
	return &academicRepository{db: db}
}

func copyStudent(s academic.Student) academic.Student {
	if s.ClassID != nil {
		s.ClassID = core.Int64Ptr(*s.ClassID)
	}
	if s.RollNumber != nil {
		roll := *s.RollNumber
		s.RollNumber = &roll
	}
	return s
}

func (repo *academicRepository) CreateSchool(_ context.Context, school academic.School) (academic.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	school.ID = repo.db.nextID("schools", school.ID)
	repo.db.t.schools[school.ID] = school
	return school, nil
}

func (repo *academicRepository) GetSchool(_ context.Context, id int64, _ ...core.DBExecutor) (academic.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if school, ok := repo.db.t.schools[id]; ok {
		return school, nil
	}
	return academic.School{}, core.NewNotFoundError("school %d not found", id)
}

func (repo *academicRepository) CreateSession(
	_ context.Context,
	session academic.Session,
	_ ...core.DBExecutor,
) (academic.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if session.Active {
		for _, s := range repo.db.t.sessions {
			if s.SchoolID == session.SchoolID && s.Active {
				return academic.Session{}, core.NewAlreadyExistsError("school %d already has an active session", session.SchoolID)
			}
		}
	}
	session.ID = repo.db.nextID("sessions", session.ID)
	repo.db.t.sessions[session.ID] = session
	return session, nil
}

func (repo *academicRepository) GetSession(_ context.Context, schoolID, id int64, _ ...core.DBExecutor) (academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.sessions[id]; ok && s.SchoolID == schoolID {
		return s, nil
	}
	return academic.Session{}, core.NewNotFoundError("session %d not found", id)
}

func (repo *academicRepository) GetActiveSession(_ context.Context, schoolID int64, _ ...core.DBExecutor) (academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.t.sessions {
		if s.SchoolID == schoolID && s.Active {
			return s, nil
		}
	}
	return academic.Session{}, core.NewNotFoundError("no active session for school %d", schoolID)
}

func (repo *academicRepository) QuerySessions(_ context.Context, schoolID int64, _ ...core.DBExecutor) ([]academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := make([]academic.Session, 0)
	for _, s := range repo.db.t.sessions {
		if s.SchoolID == schoolID {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartDate.Before(sessions[j].StartDate) })
	return sessions, nil
}

func (repo *academicRepository) SetSessionActive(
	_ context.Context,
	schoolID, id int64,
	active bool,
	_ ...core.DBExecutor,
) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	session, ok := repo.db.t.sessions[id]
	if !ok || session.SchoolID != schoolID {
		return core.NewNotFoundError("session %d not found", id)
	}
	if active {
		for _, s := range repo.db.t.sessions {
			if s.SchoolID == schoolID && s.Active && s.ID != id {
				return core.NewAlreadyExistsError("school %d already has an active session", schoolID)
			}
		}
	}
	session.Active = active
	repo.db.t.sessions[id] = session
	return nil
}

func (repo *academicRepository) CreateClass(_ context.Context, class academic.Class, _ ...core.DBExecutor) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, c := range repo.db.t.classes {
		if c.SchoolID == class.SchoolID && c.SessionID == class.SessionID && c.Name == class.Name {
			return academic.Class{}, core.NewAlreadyExistsError("class %s already exists in this session", class.Name)
		}
	}
	class.ID = repo.db.nextID("classes", class.ID)
	repo.db.t.classes[class.ID] = class
	return class, nil
}

func (repo *academicRepository) GetClass(_ context.Context, schoolID, id int64, _ ...core.DBExecutor) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.classes[id]; ok && c.SchoolID == schoolID {
		return c, nil
	}
	return academic.Class{}, core.NewNotFoundError("class %d not found", id)
}

func (repo *academicRepository) GetClassByName(
	_ context.Context,
	schoolID, sessionID int64,
	name string,
	_ ...core.DBExecutor,
) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, c := range repo.db.t.classes {
		if c.SchoolID == schoolID && c.SessionID == sessionID && c.Name == name {
			return c, nil
		}
	}
	return academic.Class{}, core.NewNotFoundError("class %s not found in session %d", name, sessionID)
}

func (repo *academicRepository) QueryClasses(
	_ context.Context,
	schoolID, sessionID int64,
	_ ...core.DBExecutor,
) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]academic.Class, 0)
	for _, c := range repo.db.t.classes {
		if c.SchoolID == schoolID && c.SessionID == sessionID {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *academicRepository) CreateStudent(
	_ context.Context,
	student academic.Student,
	_ ...core.DBExecutor,
) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := studentKey{schoolID: student.SchoolID, pan: student.PAN}
	if _, ok := repo.db.t.students[key]; ok {
		return academic.Student{}, core.NewAlreadyExistsError("student %s already exists", student.PAN)
	}
	if student.Status == "" {
		student.Status = academic.StatusActive
	}
	repo.db.t.students[key] = copyStudent(student)
	return copyStudent(student), nil
}

func (repo *academicRepository) GetStudent(
	_ context.Context,
	schoolID int64,
	pan string,
	_ ...core.DBExecutor,
) (academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.students[studentKey{schoolID: schoolID, pan: pan}]; ok {
		return copyStudent(s), nil
	}
	return academic.Student{}, core.NewNotFoundError("student %s not found", pan)
}

func (repo *academicRepository) QueryStudents(
	_ context.Context,
	filter academic.StudentFilter,
	_ ...core.DBExecutor,
) ([]academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(filter.ExcludePANs))
	for _, pan := range filter.ExcludePANs {
		excluded[pan] = true
	}

	students := make([]academic.Student, 0)
	for _, s := range repo.db.t.students {
		if (filter.SchoolID != 0 && s.SchoolID != filter.SchoolID) ||
			(filter.SessionID != 0 && s.SessionID != filter.SessionID) ||
			(filter.Status != "" && s.Status != filter.Status) ||
			excluded[s.PAN] {
			continue
		}
		students = append(students, copyStudent(s))
	}
	sort.Slice(students, func(i, j int) bool { return students[i].PAN < students[j].PAN })
	return students, nil
}

func (repo *academicRepository) UpdateStudent(
	_ context.Context,
	student academic.Student,
	_ ...core.DBExecutor,
) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := studentKey{schoolID: student.SchoolID, pan: student.PAN}
	if _, ok := repo.db.t.students[key]; !ok {
		return academic.Student{}, core.NewNotFoundError("student %s not found", student.PAN)
	}
	if student.RollNumber != nil && student.ClassID != nil {
		for k, s := range repo.db.t.students {
			if k != key && s.SchoolID == student.SchoolID && s.SessionID == student.SessionID &&
				core.Int64PtrEqual(s.ClassID, student.ClassID) && s.RollNumber != nil && *s.RollNumber == *student.RollNumber {
				return academic.Student{}, core.NewAlreadyExistsError("roll number %d is already taken", *student.RollNumber)
			}
		}
	}
	repo.db.t.students[key] = copyStudent(student)
	return copyStudent(student), nil
}

func (repo *academicRepository) CreateEnrollmentIfNotExists(
	_ context.Context,
	enr academic.Enrollment,
	_ ...core.DBExecutor,
) (academic.Enrollment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, e := range repo.db.t.enrollments {
		if e.SchoolID == enr.SchoolID && e.StudentPAN == enr.StudentPAN && e.SessionID == enr.SessionID && e.ClassID == enr.ClassID {
			return e, false, nil
		}
	}
	enr.ID = repo.db.nextID("enrollments", enr.ID)
	repo.db.t.enrollments[enr.ID] = enr
	return enr, true, nil
}

func (repo *academicRepository) QueryEnrollments(
	_ context.Context,
	schoolID int64,
	pan string,
	_ ...core.DBExecutor,
) ([]academic.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrollments := make([]academic.Enrollment, 0)
	for _, e := range repo.db.t.enrollments {
		if e.SchoolID == schoolID && e.StudentPAN == pan {
			enrollments = append(enrollments, e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID < enrollments[j].ID })
	return enrollments, nil
}
