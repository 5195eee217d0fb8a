package promotion

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPromoted  Status = "PROMOTED"
	StatusDetained  Status = "DETAINED"
	StatusGraduated Status = "GRADUATED"
)

type DecisionKind string

const (
	KindGraduate  DecisionKind = "GRADUATE"
	KindDetain    DecisionKind = "DETAIN"
	KindPromoteTo DecisionKind = "PROMOTE"
)

// Decision is what happens to a student at rollover: Graduate, Detain or PromoteTo a class.
// ClassID is the target class (the current class when detained) and is 0 for Graduate.
type Decision struct {
	Kind    DecisionKind
	ClassID int64
}

func Graduate() Decision { return Decision{Kind: KindGraduate} }

func Detain(currentClassID int64) Decision { return Decision{Kind: KindDetain, ClassID: currentClassID} }

func PromoteTo(classID int64) Decision { return Decision{Kind: KindPromoteTo, ClassID: classID} }

// Promotion is the decision taken for a student at the end of a session.
// There is at most one per (school, student, from session).
type Promotion struct {
	ID            int64        `json:"id"`
	SchoolID      int64        `json:"schoolId"`
	StudentPAN    string       `json:"studentPan"`
	FromClassID   int64        `json:"fromClassId"`
	FromSessionID int64        `json:"fromSessionId"`
	Decision      DecisionKind `json:"decision"`
	ToClassID     *int64       `json:"toClassId"`   // nil: graduated
	ToSessionID   *int64       `json:"toSessionId"` // set on execution
	AssignedByID  int64        `json:"assignedById"`
	Status        Status       `json:"status"`
	Remarks       string       `json:"remarks"`
	IsGraduated   bool         `json:"isGraduated"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	ExecutedAt    *time.Time   `json:"executedAt"`
}

// GetDecision rebuilds the Decision persisted on the promotion.
func (p Promotion) GetDecision() Decision {
	d := Decision{Kind: p.Decision}
	if p.ToClassID != nil {
		d.ClassID = *p.ToClassID
	}
	return d
}

func (p *Promotion) setDecision(d Decision) {
	p.Decision = d.Kind
	p.IsGraduated = d.Kind == KindGraduate
	if d.Kind == KindGraduate {
		p.ToClassID = nil
	} else {
		p.ToClassID = core.Int64Ptr(d.ClassID)
	}
}

func (p Promotion) IsPending() bool { return p.Status == StatusPending }

// Filter applies AND operation on its set fields. Results are ordered by student PAN.
type Filter struct {
	SchoolID      int64
	FromSessionID int64
	FromClassID   int64
	Status        Status
}

// AssignRequest is a teacher's decision for one of their students.
type AssignRequest struct {
	StudentPAN  string `json:"studentPan" validate:"required,notblank"`
	ToClassID   *int64 `json:"toClassId"`
	Remarks     string `json:"remarks" validate:"max=500"`
	IsGraduated bool   `json:"isGraduated"`
	IsDetained  bool   `json:"isDetained"`
}

func (r *AssignRequest) Validate(validate *validator.Validate) error {
	r.StudentPAN = core.CleanString(r.StudentPAN)
	r.Remarks = core.CleanString(r.Remarks)
	return validate.Struct(r)
}

// ExecuteParams selects the rollover to run.
type ExecuteParams struct {
	SchoolID      int64
	FromSessionID int64
	ToSessionID   int64
	RequestedBy   *user.User // receives the report by email when set
}

type Outcome string

const (
	OutcomePromoted       Outcome = "PROMOTED"
	OutcomeDetained       Outcome = "DETAINED"
	OutcomeGraduated      Outcome = "GRADUATED"
	OutcomeCarriedForward Outcome = "CARRIED_FORWARD"
	OutcomeSkipped        Outcome = "SKIPPED"
	OutcomeFailed         Outcome = "FAILED"
)

// Pass tells which rollover pass handled a student.
type Pass string

const (
	PassExplicit Pass = "explicit"
	PassSweep    Pass = "sweep"
)

type StudentOutcome struct {
	StudentPAN string  `json:"studentPan"`
	Pass       Pass    `json:"pass"`
	Outcome    Outcome `json:"outcome"`
	FromClass  string  `json:"fromClass,omitempty"`
	ToClass    string  `json:"toClass,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	FeesAdded  int     `json:"feesAdded"`
}

// Report summarizes a rollover run.
type Report struct {
	RunID          uuid.UUID        `json:"runId"`
	SchoolID       int64            `json:"schoolId"`
	FromSessionID  int64            `json:"fromSessionId"`
	FromSession    string           `json:"fromSession"`
	ToSessionID    int64            `json:"toSessionId"`
	ToSession      string           `json:"toSession"`
	Promoted       int              `json:"promoted"`
	Detained       int              `json:"detained"`
	Graduated      int              `json:"graduated"`
	CarriedForward int              `json:"carriedForward"`
	Skipped        int              `json:"skipped"`
	Failed         int              `json:"failed"`
	Outcomes       []StudentOutcome `json:"outcomes"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
}

func (r *Report) add(o StudentOutcome) {
	switch o.Outcome {
	case OutcomePromoted:
		r.Promoted++
	case OutcomeDetained:
		r.Detained++
	case OutcomeGraduated:
		r.Graduated++
	case OutcomeCarriedForward:
		r.CarriedForward++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Total is the number of students the run looked at.
func (r Report) Total() int {
	return r.Promoted + r.Detained + r.Graduated + r.CarriedForward + r.Skipped + r.Failed
}

func (r Report) String() string {
	return fmt.Sprintf(
		"rollover %s: promoted=%d detained=%d graduated=%d carriedForward=%d skipped=%d failed=%d",
		r.RunID, r.Promoted, r.Detained, r.Graduated, r.CarriedForward, r.Skipped, r.Failed,
	)
}
