package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const monthsPerSession = 12

// dueDay is the day of the month fees are due.
const dueDay = 10

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusUnpaid  Status = "UNPAID"
	StatusOverdue Status = "OVERDUE"
)

// Structure is the monthly fee amount of a class for a session.
type Structure struct {
	ID        int64 `json:"id"`
	SchoolID  int64 `json:"schoolId"`
	ClassID   int64 `json:"classId"`
	SessionID int64 `json:"sessionId"`
	Amount    int64 `json:"amount"`
}

// Fee is the monthly amount a student owes.
type Fee struct {
	ID          int64      `json:"id"`
	SchoolID    int64      `json:"schoolId"`
	StudentPAN  string     `json:"studentPan"`
	StructureID int64      `json:"structureId"`
	ClassID     int64      `json:"classId"`
	SessionID   int64      `json:"sessionId"`
	Month       time.Month `json:"month"`
	Year        int        `json:"year"`
	Amount      int64      `json:"amount"`
	Status      Status     `json:"status"`
	DueDate     time.Time  `json:"dueDate"` // UTC
}

// Filter applies AND operation on its set fields.
// Results are ordered by year & month.
type Filter struct {
	SchoolID   int64
	StudentPAN string
	SessionID  int64
	Status     Status
}

// Result summarizes a fee schedule generation.
type Result struct {
	Created          int  `json:"created"`
	Skipped          int  `json:"skipped"`
	MissingStructure bool `json:"missingStructure"`
}

// NewStructure contains information needed to create a new fee Structure.
type NewStructure struct {
	ClassID   int64 `json:"classId" validate:"required"`
	SessionID int64 `json:"sessionId" validate:"required"`
	Amount    int64 `json:"amount" validate:"gte=0"`
}

func (ns *NewStructure) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

// dueDate returns the 10th of the month, UTC.
func dueDate(year int, month time.Month) time.Time {
	return time.Date(year, month, dueDay, 0, 0, 0, 0, time.UTC)
}
