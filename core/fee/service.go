package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

type (
	Repository interface {
		// GetStructure fails with a core.NotFoundError when the class has no structure for the session.
		GetStructure(ctx context.Context, schoolID, classID, sessionID int64, exec ...core.DBExecutor) (Structure, error)
		// CreateStructure fails with a core.AlreadyExistsError on a duplicate (school, class, session).
		CreateStructure(ctx context.Context, st Structure, exec ...core.DBExecutor) (Structure, error)
		// CreateFeeIfNotExists ignores a fee already present for (student, month, year, session)
		// and reports whether a new fee was created.
		CreateFeeIfNotExists(ctx context.Context, f Fee, exec ...core.DBExecutor) (Fee, bool, error)
		QueryFees(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Fee, error)
		// MarkOverdue flags PENDING fees due before asOf as OVERDUE, across schools.
		MarkOverdue(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) (int64, error)
	}

	// ClassLookup finds the classes fee structures are attached to.
	ClassLookup interface {
		GetClass(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (academic.Class, error)
	}
)

// Generator creates the monthly fees of a student for a session.
type Generator struct {
	repo   Repository
	logger core.Logger
}

func NewGenerator(repo Repository, logger core.Logger) *Generator {
	return &Generator{repo: repo, logger: logger}
}

// GenerateForSession creates 12 consecutive monthly fees starting at the session's start month.
// A class without fee structure is not an error: a warning is logged and no fee is created.
// Fees that already exist are skipped, so the call can be repeated safely.
func (g *Generator) GenerateForSession(
	ctx context.Context,
	student academic.Student,
	class academic.Class,
	session academic.Session,
	exec ...core.DBExecutor,
) (Result, error) {
	var res Result

	st, err := g.repo.GetStructure(ctx, student.SchoolID, class.ID, session.ID, exec...)
	if err != nil {
		if core.IsNotFound(err) {
			g.logger.Warn(
				fmt.Sprintf("no fee structure for class %q in session %q: no fees generated for student %s",
					class.Name, session.Name, student.PAN),
			)
			res.MissingStructure = true
			return res, nil
		}
		return res, errors.Wrap(err, "getting fee structure")
	}

	start := time.Date(session.StartDate.Year(), session.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < monthsPerSession; i++ {
		month := start.AddDate(0, i, 0)
		_, created, err := g.repo.CreateFeeIfNotExists(ctx, Fee{
			SchoolID:    student.SchoolID,
			StudentPAN:  student.PAN,
			StructureID: st.ID,
			ClassID:     class.ID,
			SessionID:   session.ID,
			Month:       month.Month(),
			Year:        month.Year(),
			Amount:      st.Amount,
			Status:      StatusPending,
			DueDate:     dueDate(month.Year(), month.Month()),
		}, exec...)
		if err != nil {
			return res, errors.Wrapf(err, "creating fee %d-%02d for student %s", month.Year(), month.Month(), student.PAN)
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

type Service struct {
	repo    Repository
	classes ClassLookup
}

func NewService(repo Repository, classes ClassLookup) *Service {
	return &Service{repo: repo, classes: classes}
}

func (svc *Service) CreateStructure(ctx context.Context, schoolID int64, ns NewStructure) (Structure, error) {
	class, err := svc.classes.GetClass(ctx, schoolID, ns.ClassID)
	if err != nil {
		return Structure{}, err
	}
	if class.SessionID != ns.SessionID {
		return Structure{}, core.NewArgumentError("class %q does not belong to session %d", class.Name, ns.SessionID)
	}
	return svc.repo.CreateStructure(ctx, Structure{
		SchoolID:  schoolID,
		ClassID:   class.ID,
		SessionID: ns.SessionID,
		Amount:    ns.Amount,
	})
}

// QueryStudentFees lists a student's fees, optionally restricted to a session (sessionID > 0).
func (svc *Service) QueryStudentFees(ctx context.Context, schoolID int64, pan string, sessionID int64) ([]Fee, error) {
	return svc.repo.QueryFees(ctx, Filter{
		SchoolID:   schoolID,
		StudentPAN: core.CleanString(pan),
		SessionID:  sessionID,
	})
}

func (svc *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return svc.repo.MarkOverdue(ctx, asOf.UTC())
}
