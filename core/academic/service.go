package academic

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, school School) (School, error)
		GetSchool(ctx context.Context, id int64, exec ...core.DBExecutor) (School, error)

		CreateSession(ctx context.Context, session Session, exec ...core.DBExecutor) (Session, error)
		GetSession(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (Session, error)
		// GetActiveSession fails with a core.NotFoundError when the school has no active session.
		GetActiveSession(ctx context.Context, schoolID int64, exec ...core.DBExecutor) (Session, error)
		// QuerySessions returns the school's sessions ordered by start date.
		QuerySessions(ctx context.Context, schoolID int64, exec ...core.DBExecutor) ([]Session, error)
		SetSessionActive(ctx context.Context, schoolID, id int64, active bool, exec ...core.DBExecutor) error

		// CreateClass fails with a core.AlreadyExistsError when the name is taken in the session.
		CreateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
		GetClass(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (Class, error)
		GetClassByName(ctx context.Context, schoolID, sessionID int64, name string, exec ...core.DBExecutor) (Class, error)
		// QueryClasses returns the classes of a session ordered by name.
		QueryClasses(ctx context.Context, schoolID, sessionID int64, exec ...core.DBExecutor) ([]Class, error)

		CreateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, schoolID int64, pan string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)

		// CreateEnrollmentIfNotExists reports whether a new enrollment was created.
		CreateEnrollmentIfNotExists(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, bool, error)
		QueryEnrollments(ctx context.Context, schoolID int64, pan string, exec ...core.DBExecutor) ([]Enrollment, error)
	}

	// UserLookup finds the users assigned as class teachers.
	UserLookup interface {
		GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error)
	}

	Service struct {
		repo  Repository
		tx    core.TxRunner
		users UserLookup
	}
)

func NewService(repo Repository, tx core.TxRunner, users UserLookup) *Service {
	return &Service{repo: repo, tx: tx, users: users}
}

func (svc *Service) CreateSchool(ctx context.Context, name string) (School, error) {
	name = core.CleanString(name)
	if name == "" {
		return School{}, core.NewArgumentError("school name is required")
	}
	return svc.repo.CreateSchool(ctx, School{Name: name})
}

func (svc *Service) GetSchool(ctx context.Context, id int64) (School, error) {
	return svc.repo.GetSchool(ctx, id)
}

// CreateSession adds a session to the school.
// Sessions of a school may not overlap and at most one of them is active.
func (svc *Service) CreateSession(ctx context.Context, schoolID int64, ns NewSession) (Session, error) {
	session := Session{
		SchoolID:  schoolID,
		Name:      ns.Name,
		StartDate: ns.start,
		EndDate:   ns.end,
		Active:    ns.Active,
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetSchool(ctx, schoolID, exec); err != nil {
			return err
		}

		sessions, err := svc.repo.QuerySessions(ctx, schoolID, exec)
		if err != nil {
			return errors.Wrap(err, "querying sessions")
		}
		for _, other := range sessions {
			if other.Overlaps(session) {
				return core.NewArgumentError("session dates overlap with session %q", other.Name)
			}
			if session.Active && other.Active {
				return core.NewArgumentError(
					"session %q is already active; create this session inactive then activate it", other.Name,
				)
			}
		}

		session, err = svc.repo.CreateSession(ctx, session, exec)
		return errors.Wrap(err, "creating session")
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// ActivateSession makes the session the only active one of its school.
func (svc *Service) ActivateSession(ctx context.Context, schoolID, sessionID int64) (Session, error) {
	var session Session
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if session, err = svc.repo.GetSession(ctx, schoolID, sessionID, exec); err != nil {
			return err
		}
		if session.Active {
			return nil
		}

		current, err := svc.repo.GetActiveSession(ctx, schoolID, exec)
		switch {
		case err == nil:
			if err = svc.repo.SetSessionActive(ctx, schoolID, current.ID, false, exec); err != nil {
				return errors.Wrap(err, "deactivating current session")
			}
		case !core.IsNotFound(err):
			return errors.Wrap(err, "getting active session")
		}

		if err = svc.repo.SetSessionActive(ctx, schoolID, session.ID, true, exec); err != nil {
			return errors.Wrap(err, "activating session")
		}
		session.Active = true
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (svc *Service) QuerySessions(ctx context.Context, schoolID int64) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, schoolID)
}

func (svc *Service) GetSession(ctx context.Context, schoolID, id int64) (Session, error) {
	return svc.repo.GetSession(ctx, schoolID, id)
}

// ResolveSessionContext returns the school's active session context.
func (svc *Service) ResolveSessionContext(ctx context.Context, schoolID int64) (SessionContext, error) {
	session, err := svc.repo.GetActiveSession(ctx, schoolID)
	if err != nil {
		if core.IsNotFound(err) {
			return SessionContext{}, core.NewNotFoundError("school %d has no active session", schoolID)
		}
		return SessionContext{}, errors.Wrap(err, "getting active session")
	}
	return SessionContext{SchoolID: schoolID, Session: session}, nil
}

func (svc *Service) CreateClass(ctx context.Context, schoolID int64, nc NewClass) (Class, error) {
	if _, err := svc.repo.GetSession(ctx, schoolID, nc.SessionID); err != nil {
		return Class{}, err
	}
	if nc.ClassTeacherID != 0 {
		if err := svc.checkClassTeacher(ctx, schoolID, nc.ClassTeacherID); err != nil {
			return Class{}, err
		}
	}
	return svc.repo.CreateClass(ctx, Class{
		SchoolID:       schoolID,
		SessionID:      nc.SessionID,
		Name:           nc.Name,
		ClassTeacherID: nc.ClassTeacherID,
	})
}

// checkClassTeacher fails with a core.ArgumentError unless id is a teacher of the school.
func (svc *Service) checkClassTeacher(ctx context.Context, schoolID, id int64) error {
	usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewArgumentError("class teacher %d does not exist", id)
		}
		return errors.Wrap(err, "getting class teacher")
	}
	if usr.SchoolID != schoolID || !usr.IsTeacher() {
		return core.NewArgumentError("user %d is not a teacher of this school", id)
	}
	return nil
}

func (svc *Service) QueryClasses(ctx context.Context, schoolID, sessionID int64) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, schoolID, sessionID)
}

func (svc *Service) GetClass(ctx context.Context, schoolID, id int64) (Class, error) {
	return svc.repo.GetClass(ctx, schoolID, id)
}

func (svc *Service) GetStudent(ctx context.Context, schoolID int64, pan string) (Student, error) {
	return svc.repo.GetStudent(ctx, schoolID, core.CleanString(pan))
}

// Registrar keeps exactly one enrollment per (student, session, class).
type Registrar struct {
	repo Repository
}

func NewRegistrar(repo Repository) *Registrar {
	return &Registrar{repo: repo}
}

// EnsureEnrollment enrolls the student into the class for the session unless already enrolled.
// It reports whether a new enrollment was created.
func (r *Registrar) EnsureEnrollment(
	ctx context.Context,
	student Student,
	classID, sessionID int64,
	exec ...core.DBExecutor,
) (Enrollment, bool, error) {
	enr, created, err := r.repo.CreateEnrollmentIfNotExists(ctx, Enrollment{
		SchoolID:   student.SchoolID,
		StudentPAN: student.PAN,
		ClassID:    classID,
		SessionID:  sessionID,
		CreatedAt:  time.Now().UTC(),
	}, exec...)
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, fmt.Sprintf("enrolling student %s", student.PAN))
	}
	return enr, created, nil
}
