package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

type (
	schoolRow struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}

	sessionRow struct {
		ID        int64     `db:"id"`
		SchoolID  int64     `db:"school_id"`
		Name      string    `db:"name"`
		StartDate time.Time `db:"start_date"`
		EndDate   time.Time `db:"end_date"`
		IsActive  bool      `db:"is_active"`
	}

	classRow struct {
		ID             int64      `db:"id"`
		SchoolID       int64      `db:"school_id"`
		SessionID      int64      `db:"session_id"`
		Name           string     `db:"name"`
		ClassTeacherID null.Int64 `db:"class_teacher_id"`
	}

	studentRow struct {
		PAN        string     `db:"pan"`
		SchoolID   int64      `db:"school_id"`
		Name       string     `db:"name"`
		Status     string     `db:"status"`
		ClassID    null.Int64 `db:"class_id"`
		SessionID  null.Int64 `db:"session_id"`
		RollNumber null.Int   `db:"roll_number"`
	}

	enrollmentRow struct {
		ID         int64     `db:"id"`
		SchoolID   int64     `db:"school_id"`
		StudentPAN string    `db:"student_pan"`
		ClassID    int64     `db:"class_id"`
		SessionID  int64     `db:"session_id"`
		CreatedAt  time.Time `db:"created_at"`
	}
)

func (r sessionRow) unboil() academic.Session {
	return academic.Session{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		Name:      r.Name,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		Active:    r.IsActive,
	}
}

func (r classRow) unboil() academic.Class {
	return academic.Class{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		SessionID:      r.SessionID,
		Name:           r.Name,
		ClassTeacherID: r.ClassTeacherID.Int64,
	}
}

func boilStudent(s academic.Student) studentRow {
	return studentRow{
		PAN:        s.PAN,
		SchoolID:   s.SchoolID,
		Name:       s.Name,
		Status:     string(s.Status),
		ClassID:    null.Int64FromPtr(s.ClassID),
		SessionID:  null.NewInt64(s.SessionID, s.SessionID != 0),
		RollNumber: null.IntFromPtr(s.RollNumber),
	}
}

func (r studentRow) unboil() academic.Student {
	return academic.Student{
		PAN:        r.PAN,
		SchoolID:   r.SchoolID,
		Name:       r.Name,
		Status:     academic.StudentStatus(r.Status),
		ClassID:    r.ClassID.Ptr(),
		SessionID:  r.SessionID.Int64,
		RollNumber: r.RollNumber.Ptr(),
	}
}

func (r enrollmentRow) unboil() academic.Enrollment {
	return academic.Enrollment{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		StudentPAN: r.StudentPAN,
		ClassID:    r.ClassID,
		SessionID:  r.SessionID,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

const (
	sessionColumns    = `id, school_id, name, start_date, end_date, is_active`
	classColumns      = `id, school_id, session_id, name, class_teacher_id`
	studentColumns    = `pan, school_id, name, status, class_id, session_id, roll_number`
	enrollmentColumns = `id, school_id, student_pan, class_id, session_id, created_at`
)

type academicRepository struct {
	db *sql.DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *sql.DB) *academicRepository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) CreateSchool(ctx context.Context, school academic.School) (academic.School, error) {
	err := repo.db.QueryRowContext(ctx, `INSERT INTO schools (name) VALUES ($1) RETURNING id`, school.Name).Scan(&school.ID)
	if err != nil {
		return academic.School{}, errors.Wrap(err, "inserting school")
	}
	return school, nil
}

func (repo *academicRepository) GetSchool(ctx context.Context, id int64, exec ...core.DBExecutor) (academic.School, error) {
	var rows []schoolRow
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, `SELECT id, name FROM schools WHERE id = $1`, id); err != nil {
		return academic.School{}, errors.Wrap(err, "selecting school")
	}
	if len(rows) == 0 {
		return academic.School{}, core.NewNotFoundError("school %d not found", id)
	}
	return academic.School{ID: rows[0].ID, Name: rows[0].Name}, nil
}

func (repo *academicRepository) CreateSession(
	ctx context.Context,
	session academic.Session,
	exec ...core.DBExecutor,
) (academic.Session, error) {
	err := getExec(repo.db, exec).QueryRowContext(
		ctx,
		`INSERT INTO sessions (school_id, name, start_date, end_date, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		session.SchoolID, session.Name, session.StartDate, session.EndDate, session.Active,
	).Scan(&session.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Session{}, core.NewAlreadyExistsError("school %d already has an active session", session.SchoolID)
		}
		return academic.Session{}, errors.Wrap(err, "inserting session")
	}
	return session, nil
}

func (repo *academicRepository) getSession(
	ctx context.Context,
	exec []core.DBExecutor,
	notFound error,
	where string,
	args ...interface{},
) (academic.Session, error) {
	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + where
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return academic.Session{}, errors.Wrap(err, "selecting session")
	}
	if len(rows) == 0 {
		return academic.Session{}, notFound
	}
	return rows[0].unboil(), nil
}

func (repo *academicRepository) GetSession(
	ctx context.Context,
	schoolID, id int64,
	exec ...core.DBExecutor,
) (academic.Session, error) {
	return repo.getSession(ctx, exec, core.NewNotFoundError("session %d not found", id),
		`school_id = $1 AND id = $2`, schoolID, id)
}

func (repo *academicRepository) GetActiveSession(
	ctx context.Context,
	schoolID int64,
	exec ...core.DBExecutor,
) (academic.Session, error) {
	return repo.getSession(ctx, exec, core.NewNotFoundError("no active session for school %d", schoolID),
		`school_id = $1 AND is_active`, schoolID)
}

func (repo *academicRepository) QuerySessions(
	ctx context.Context,
	schoolID int64,
	exec ...core.DBExecutor,
) ([]academic.Session, error) {
	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE school_id = $1 ORDER BY start_date`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "selecting sessions")
	}
	sessions := make([]academic.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.unboil())
	}
	return sessions, nil
}

func (repo *academicRepository) SetSessionActive(
	ctx context.Context,
	schoolID, id int64,
	active bool,
	exec ...core.DBExecutor,
) error {
	res, err := getExec(repo.db, exec).ExecContext(
		ctx, `UPDATE sessions SET is_active = $3 WHERE school_id = $1 AND id = $2`, schoolID, id, active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.NewAlreadyExistsError("school %d already has an active session", schoolID)
		}
		return errors.Wrap(err, "updating session")
	}
	return checkAffected(res, core.NewNotFoundError("session %d not found", id))
}

func (repo *academicRepository) CreateClass(
	ctx context.Context,
	class academic.Class,
	exec ...core.DBExecutor,
) (academic.Class, error) {
	err := getExec(repo.db, exec).QueryRowContext(
		ctx,
		`INSERT INTO classes (school_id, session_id, name, class_teacher_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		class.SchoolID, class.SessionID, class.Name, null.NewInt64(class.ClassTeacherID, class.ClassTeacherID != 0),
	).Scan(&class.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Class{}, core.NewAlreadyExistsError("class %s already exists in this session", class.Name)
		}
		return academic.Class{}, errors.Wrap(err, "inserting class")
	}
	return class, nil
}

func (repo *academicRepository) getClass(
	ctx context.Context,
	exec []core.DBExecutor,
	notFound error,
	where string,
	args ...interface{},
) (academic.Class, error) {
	var rows []classRow
	q := `SELECT ` + classColumns + ` FROM classes WHERE ` + where
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return academic.Class{}, errors.Wrap(err, "selecting class")
	}
	if len(rows) == 0 {
		return academic.Class{}, notFound
	}
	return rows[0].unboil(), nil
}

func (repo *academicRepository) GetClass(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (academic.Class, error) {
	return repo.getClass(ctx, exec, core.NewNotFoundError("class %d not found", id),
		`school_id = $1 AND id = $2`, schoolID, id)
}

func (repo *academicRepository) GetClassByName(
	ctx context.Context,
	schoolID, sessionID int64,
	name string,
	exec ...core.DBExecutor,
) (academic.Class, error) {
	return repo.getClass(ctx, exec, core.NewNotFoundError("class %s not found in session %d", name, sessionID),
		`school_id = $1 AND session_id = $2 AND name = $3`, schoolID, sessionID, name)
}

func (repo *academicRepository) QueryClasses(
	ctx context.Context,
	schoolID, sessionID int64,
	exec ...core.DBExecutor,
) ([]academic.Class, error) {
	var rows []classRow
	q := `SELECT ` + classColumns + ` FROM classes WHERE school_id = $1 AND session_id = $2 ORDER BY name`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, schoolID, sessionID); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]academic.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.unboil())
	}
	return classes, nil
}

func (repo *academicRepository) CreateStudent(
	ctx context.Context,
	student academic.Student,
	exec ...core.DBExecutor,
) (academic.Student, error) {
	if student.Status == "" {
		student.Status = academic.StatusActive
	}
	r := boilStudent(student)
	_, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.PAN, r.SchoolID, r.Name, r.Status, r.ClassID, r.SessionID, r.RollNumber,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Student{}, core.NewAlreadyExistsError("student %s already exists", student.PAN)
		}
		return academic.Student{}, errors.Wrap(err, "inserting student")
	}
	return student, nil
}

func (repo *academicRepository) GetStudent(
	ctx context.Context,
	schoolID int64,
	pan string,
	exec ...core.DBExecutor,
) (academic.Student, error) {
	var rows []studentRow
	q := `SELECT ` + studentColumns + ` FROM students WHERE school_id = $1 AND pan = $2`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, schoolID, pan); err != nil {
		return academic.Student{}, errors.Wrap(err, "selecting student")
	}
	if len(rows) == 0 {
		return academic.Student{}, core.NewNotFoundError("student %s not found", pan)
	}
	return rows[0].unboil(), nil
}

func (repo *academicRepository) QueryStudents(
	ctx context.Context,
	filter academic.StudentFilter,
	exec ...core.DBExecutor,
) ([]academic.Student, error) {
	var rows []studentRow
	q := `SELECT ` + studentColumns + ` FROM students
		WHERE ($1::BIGINT = 0 OR school_id = $1)
		  AND ($2::BIGINT = 0 OR session_id = $2)
		  AND ($3::TEXT = '' OR status = $3)
		  AND NOT (pan = ANY($4::TEXT[]))
		ORDER BY pan`
	excluded := filter.ExcludePANs
	if excluded == nil {
		excluded = []string{}
	}
	err := selectRows(ctx, getExec(repo.db, exec), &rows, q,
		filter.SchoolID, filter.SessionID, string(filter.Status), pq.Array(excluded))
	if err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]academic.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unboil())
	}
	return students, nil
}

func (repo *academicRepository) UpdateStudent(
	ctx context.Context,
	student academic.Student,
	exec ...core.DBExecutor,
) (academic.Student, error) {
	r := boilStudent(student)
	res, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE students SET name = $3, status = $4, class_id = $5, session_id = $6, roll_number = $7
		WHERE school_id = $1 AND pan = $2`,
		r.SchoolID, r.PAN, r.Name, r.Status, r.ClassID, r.SessionID, r.RollNumber,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Student{}, core.NewAlreadyExistsError("roll number of student %s is already taken", student.PAN)
		}
		return academic.Student{}, errors.Wrap(err, "updating student")
	}
	if err = checkAffected(res, core.NewNotFoundError("student %s not found", student.PAN)); err != nil {
		return academic.Student{}, err
	}
	return student, nil
}

func (repo *academicRepository) CreateEnrollmentIfNotExists(
	ctx context.Context,
	enr academic.Enrollment,
	exec ...core.DBExecutor,
) (academic.Enrollment, bool, error) {
	ex := getExec(repo.db, exec)

	var rows []enrollmentRow
	err := selectRows(ctx, ex, &rows,
		`INSERT INTO enrollments (school_id, student_pan, class_id, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT enrollments_student_session_class_key DO NOTHING
		RETURNING `+enrollmentColumns,
		enr.SchoolID, enr.StudentPAN, enr.ClassID, enr.SessionID, enr.CreatedAt,
	)
	if err != nil {
		return academic.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
	}
	if len(rows) > 0 {
		return rows[0].unboil(), true, nil
	}

	err = selectRows(ctx, ex, &rows,
		`SELECT `+enrollmentColumns+` FROM enrollments
		WHERE school_id = $1 AND student_pan = $2 AND session_id = $3 AND class_id = $4`,
		enr.SchoolID, enr.StudentPAN, enr.SessionID, enr.ClassID,
	)
	if err != nil {
		return academic.Enrollment{}, false, errors.Wrap(err, "selecting enrollment")
	}
	if len(rows) == 0 {
		return academic.Enrollment{}, false, errors.New("enrollment conflict without existing row")
	}
	return rows[0].unboil(), false, nil
}

func (repo *academicRepository) QueryEnrollments(
	ctx context.Context,
	schoolID int64,
	pan string,
	exec ...core.DBExecutor,
) ([]academic.Enrollment, error) {
	var rows []enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE school_id = $1 AND student_pan = $2 ORDER BY id`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, schoolID, pan); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrollments := make([]academic.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.unboil())
	}
	return enrollments, nil
}
