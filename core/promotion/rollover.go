package promotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

// rollover holds the state of one Execute run.
type rollover struct {
	svc    *Service
	school academic.School
	from   academic.Session
	to     academic.Session
	report Report
}

// Execute moves the students of a session to the next one.
//
// The PENDING promotions of the from session are applied first, ordered by student PAN.
// The ACTIVE students of the from session left without any promotion are then carried
// forward to the class of the same name in the to session.
// Every student is handled in its own transaction: a failure is logged, recorded in the
// report and does not stop the run. Fees of moved students are generated after their
// transaction commits and never fail the student.
// Running it again for the same sessions does not change anything.
// Once started, the run goes on even if ctx is cancelled.
func (svc *Service) Execute(ctx context.Context, params ExecuteParams) (Report, error) {
	ctx = core.Detach(ctx)
	if params.FromSessionID == params.ToSessionID {
		return Report{}, core.NewArgumentError("cannot roll a session over to itself")
	}

	school, err := svc.dir.GetSchool(ctx, params.SchoolID)
	if err != nil {
		return Report{}, err
	}
	from, err := svc.dir.GetSession(ctx, school.ID, params.FromSessionID)
	if err != nil {
		return Report{}, err
	}
	to, err := svc.dir.GetSession(ctx, school.ID, params.ToSessionID)
	if err != nil {
		return Report{}, err
	}

	run := &rollover{
		svc:    svc,
		school: school,
		from:   from,
		to:     to,
		report: newReport(school, from, to, svc.now()),
	}
	svc.logger.Info(fmt.Sprintf("rollover %s started: %q -> %q (school %d)", run.report.RunID, from.Name, to.Name, school.ID))

	if err := run.applyPromotions(ctx); err != nil {
		return run.report, err
	}
	if err := run.carryForward(ctx); err != nil {
		return run.report, err
	}

	run.report.FinishedAt = svc.now()
	svc.logger.Info(run.report.String())
	svc.sendReport(params.RequestedBy, run.report)
	return run.report, nil
}

func (r *rollover) applyPromotions(ctx context.Context) error {
	pending, err := r.svc.repo.QueryPromotions(ctx, Filter{
		SchoolID:      r.school.ID,
		FromSessionID: r.from.ID,
		Status:        StatusPending,
	})
	if err != nil {
		return errors.Wrap(err, "querying pending promotions")
	}

	for _, p := range pending {
		r.report.add(r.applyPromotion(ctx, p))
	}
	return nil
}

func (r *rollover) applyPromotion(ctx context.Context, p Promotion) StudentOutcome {
	out := StudentOutcome{StudentPAN: p.StudentPAN, Pass: PassExplicit}

	var (
		student academic.Student
		target  *academic.Class // set when the student is moved to a class of the new session
	)
	err := r.svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if student, err = r.svc.dir.GetStudent(ctx, r.school.ID, p.StudentPAN, exec); err != nil {
			return errors.Wrap(err, "getting student")
		}
		if !student.IsActive() {
			out.Outcome = OutcomeSkipped
			out.Reason = "student is " + strings.ToLower(string(student.Status))
			return nil
		}

		fromClass, err := r.svc.dir.GetClass(ctx, r.school.ID, p.FromClassID, exec)
		if err != nil {
			return errors.Wrap(err, "getting from class")
		}
		out.FromClass = fromClass.Name

		decision := p.GetDecision()
		switch decision.Kind {
		case KindGraduate:
			student.Status = academic.StatusGraduated
			student.ClassID = nil
			student.RollNumber = nil
			p.Status = StatusGraduated
			p.ToClassID = nil
			out.Outcome = OutcomeGraduated

		case KindPromoteTo, KindDetain:
			source := fromClass
			if decision.Kind == KindPromoteTo {
				if source, err = r.svc.dir.GetClass(ctx, r.school.ID, decision.ClassID, exec); err != nil {
					return errors.Wrap(err, "getting target class")
				}
			}
			class, err := r.sameClassInNewSession(ctx, source.Name, exec)
			if err != nil {
				return err
			}
			out.ToClass = class.Name

			migrated, err := r.moveStudent(ctx, &student, class, exec)
			if err != nil {
				return err
			}
			target = &class
			p.ToClassID = core.Int64Ptr(class.ID)

			if decision.Kind == KindPromoteTo {
				p.Status, out.Outcome = StatusPromoted, OutcomePromoted
			} else {
				p.Status, out.Outcome = StatusDetained, OutcomeDetained
			}
			if migrated {
				out.Outcome = OutcomeSkipped
				out.Reason = fmt.Sprintf("already in %s for session %s", class.Name, r.to.Name)
			}

		default:
			return core.NewArgumentError("unknown promotion decision %q", decision.Kind)
		}

		if _, err = r.svc.dir.UpdateStudent(ctx, student, exec); err != nil {
			return errors.Wrap(err, "updating student")
		}

		now := r.svc.now()
		p.ToSessionID = core.Int64Ptr(r.to.ID)
		p.ExecutedAt = &now
		p.UpdatedAt = now
		if _, err = r.svc.repo.UpdatePromotion(ctx, p, exec); err != nil {
			return errors.Wrap(err, "updating promotion")
		}
		return nil
	})
	if err != nil {
		return r.failed(out, err)
	}

	if target != nil {
		out.FeesAdded = r.generateFees(ctx, student, *target)
	}
	return out
}

func (r *rollover) carryForward(ctx context.Context) error {
	promos, err := r.svc.repo.QueryPromotions(ctx, Filter{SchoolID: r.school.ID, FromSessionID: r.from.ID})
	if err != nil {
		return errors.Wrap(err, "querying promotions")
	}
	assigned := make([]string, 0, len(promos))
	for _, p := range promos {
		assigned = append(assigned, p.StudentPAN)
	}

	students, err := r.svc.dir.QueryStudents(ctx, academic.StudentFilter{
		SchoolID:    r.school.ID,
		SessionID:   r.from.ID,
		Status:      academic.StatusActive,
		ExcludePANs: assigned,
	})
	if err != nil {
		return errors.Wrap(err, "querying unassigned students")
	}

	for _, student := range students {
		r.report.add(r.carryStudentForward(ctx, student))
	}
	return nil
}

func (r *rollover) carryStudentForward(ctx context.Context, student academic.Student) StudentOutcome {
	out := StudentOutcome{StudentPAN: student.PAN, Pass: PassSweep}
	if student.ClassID == nil {
		out.Outcome = OutcomeSkipped
		out.Reason = "student is not assigned to any class"
		return out
	}

	var target *academic.Class
	err := r.svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		current, err := r.svc.dir.GetClass(ctx, r.school.ID, *student.ClassID, exec)
		if err != nil {
			return errors.Wrap(err, "getting current class")
		}
		out.FromClass = current.Name

		class, err := r.sameClassInNewSession(ctx, current.Name, exec)
		if err != nil {
			if core.IsNotFound(err) {
				r.svc.logger.Warn(fmt.Sprintf("rollover %s: student %s not carried forward: %v", r.report.RunID, student.PAN, err))
				out.Outcome = OutcomeSkipped
				out.Reason = err.Error()
				return nil
			}
			return err
		}
		out.ToClass = class.Name

		migrated, err := r.moveStudent(ctx, &student, class, exec)
		if err != nil {
			return err
		}
		if !migrated {
			if _, err = r.svc.dir.UpdateStudent(ctx, student, exec); err != nil {
				return errors.Wrap(err, "updating student")
			}
		}
		target = &class
		out.Outcome = OutcomeCarriedForward
		return nil
	})
	if err != nil {
		return r.failed(out, err)
	}

	if target != nil {
		out.FeesAdded = r.generateFees(ctx, student, *target)
	}
	return out
}

// sameClassInNewSession resolves the class named `name` in the to session.
func (r *rollover) sameClassInNewSession(ctx context.Context, name string, exec core.DBExecutor) (academic.Class, error) {
	class, err := r.svc.dir.GetClassByName(ctx, r.school.ID, r.to.ID, name, exec)
	if err != nil {
		if core.IsNotFound(err) {
			return academic.Class{}, core.NewNotFoundError(
				"class %s does not exist in session %s: create it before running the rollover", name, r.to.Name,
			)
		}
		return academic.Class{}, errors.Wrap(err, "getting class of the new session")
	}
	return class, nil
}

// moveStudent places the student in the class of the new session and enrolls them.
// It reports whether the student was already there, in which case the student is left untouched.
func (r *rollover) moveStudent(
	ctx context.Context,
	student *academic.Student,
	class academic.Class,
	exec core.DBExecutor,
) (bool, error) {
	migrated := student.SessionID == r.to.ID && core.Int64PtrEqual(student.ClassID, &class.ID)
	if !migrated {
		// roll numbers are assigned again for every session
		student.RollNumber = nil
		student.ClassID = core.Int64Ptr(class.ID)
		student.SessionID = r.to.ID
	}
	if _, _, err := r.svc.registrar.EnsureEnrollment(ctx, *student, class.ID, r.to.ID, exec); err != nil {
		return false, err
	}
	return migrated, nil
}

// generateFees creates the student's fees for the new session in a transaction of its own.
// Errors are logged only.
func (r *rollover) generateFees(ctx context.Context, student academic.Student, class academic.Class) int {
	var created int
	err := r.svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		res, err := r.svc.fees.GenerateForSession(ctx, student, class, r.to, exec)
		created = res.Created
		return err
	})
	if err != nil {
		r.svc.logger.Error(fmt.Sprintf("rollover %s: generating fees of student %s: %v", r.report.RunID, student.PAN, err), err)
		return 0
	}
	return created
}

func (r *rollover) failed(out StudentOutcome, err error) StudentOutcome {
	r.svc.logger.Error(fmt.Sprintf("rollover %s: student %s failed: %v", r.report.RunID, out.StudentPAN, err), err)
	out.Outcome = OutcomeFailed
	out.Reason = errors.Cause(err).Error()
	return out
}
