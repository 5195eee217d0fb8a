package academic

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const dateLayout = "2006-01-02"

type StudentStatus string

const (
	StatusActive    StudentStatus = "ACTIVE"
	StatusGraduated StudentStatus = "GRADUATED"
	StatusInactive  StudentStatus = "INACTIVE"
)

type School struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Session is an academic year of a school.
type Session struct {
	ID        int64     `json:"id"`
	SchoolID  int64     `json:"schoolId"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"` // UTC, date only
	EndDate   time.Time `json:"endDate"`   // UTC, date only
	Active    bool      `json:"active"`
}

// Overlaps reports whether both sessions share at least one day.
func (s Session) Overlaps(other Session) bool {
	return !s.StartDate.After(other.EndDate) && !other.StartDate.After(s.EndDate)
}

type Class struct {
	ID             int64  `json:"id"`
	SchoolID       int64  `json:"schoolId"`
	SessionID      int64  `json:"sessionId"`
	Name           string `json:"name"`
	ClassTeacherID int64  `json:"classTeacherId,omitempty"` // 0: no class teacher
}

// Student is identified by its PAN, unique within a school.
type Student struct {
	PAN        string        `json:"pan"`
	SchoolID   int64         `json:"schoolId"`
	Name       string        `json:"name"`
	Status     StudentStatus `json:"status"`
	ClassID    *int64        `json:"classId"`
	SessionID  int64         `json:"sessionId,omitempty"` // 0: never enrolled
	RollNumber *int          `json:"rollNumber"`
}

func (s Student) IsActive() bool { return s.Status == StatusActive }

// Enrollment records that a student attended a class during a session.
type Enrollment struct {
	ID         int64     `json:"id"`
	SchoolID   int64     `json:"schoolId"`
	StudentPAN string    `json:"studentPan"`
	ClassID    int64     `json:"classId"`
	SessionID  int64     `json:"sessionId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SessionContext is the school & active session an operation runs against.
type SessionContext struct {
	SchoolID int64
	Session  Session
}

// StudentFilter applies AND operation on its set fields. Results are ordered by PAN.
type StudentFilter struct {
	SchoolID    int64
	SessionID   int64
	Status      StudentStatus
	ExcludePANs []string
}

// NewSession contains information needed to create a new Session.
type NewSession struct {
	Name      string `json:"name" validate:"required,notblank"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Active    bool   `json:"active"`

	start, end time.Time
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	if err := validate.Struct(ns); err != nil {
		return err
	}

	var err error
	if ns.start, err = time.Parse(dateLayout, ns.StartDate); err != nil {
		return errors.Wrap(err, "parsing startDate")
	}
	if ns.end, err = time.Parse(dateLayout, ns.EndDate); err != nil {
		return errors.Wrap(err, "parsing endDate")
	}
	if !ns.end.After(ns.start) {
		return core.NewValidationError(
			errors.New("invalid session dates"),
			core.FieldError{Field: "endDate", Error: "endDate must be after startDate"},
		)
	}
	return nil
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	SessionID      int64  `json:"sessionId" validate:"required"`
	Name           string `json:"name" validate:"required,notblank,max=50"`
	ClassTeacherID int64  `json:"classTeacherId"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}
