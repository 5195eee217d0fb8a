package promotion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/user"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type (
	Repository interface {
		// UpsertPromotion creates the promotion of (school, student, from session) or updates it while PENDING.
		// Fails with a core.ArgumentError when the existing promotion was already executed.
		UpsertPromotion(ctx context.Context, p Promotion, exec ...core.DBExecutor) (Promotion, error)
		GetPromotion(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (Promotion, error)
		GetStudentPromotion(ctx context.Context, schoolID int64, pan string, sessionID int64, exec ...core.DBExecutor) (Promotion, error)
		QueryPromotions(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Promotion, error)
		UpdatePromotion(ctx context.Context, p Promotion, exec ...core.DBExecutor) (Promotion, error)
		// DeletePromotion fails with a core.NotFoundError unless the promotion exists and is PENDING.
		DeletePromotion(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) error
	}

	// Directory looks up & saves the school records a rollover works on.
	Directory interface {
		GetSchool(ctx context.Context, id int64, exec ...core.DBExecutor) (academic.School, error)
		GetSession(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (academic.Session, error)
		GetClass(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) (academic.Class, error)
		GetClassByName(ctx context.Context, schoolID, sessionID int64, name string, exec ...core.DBExecutor) (academic.Class, error)
		GetStudent(ctx context.Context, schoolID int64, pan string, exec ...core.DBExecutor) (academic.Student, error)
		QueryStudents(ctx context.Context, filter academic.StudentFilter, exec ...core.DBExecutor) ([]academic.Student, error)
		UpdateStudent(ctx context.Context, student academic.Student, exec ...core.DBExecutor) (academic.Student, error)
	}

	Registrar interface {
		EnsureEnrollment(
			ctx context.Context, student academic.Student, classID, sessionID int64, exec ...core.DBExecutor,
		) (academic.Enrollment, bool, error)
	}

	FeeGenerator interface {
		GenerateForSession(
			ctx context.Context, student academic.Student, class academic.Class, session academic.Session, exec ...core.DBExecutor,
		) (fee.Result, error)
	}

	// ReportWriter renders rollover reports and promotion lists as spreadsheets.
	ReportWriter interface {
		WriteReport(w io.Writer, r Report) error
		WritePromotions(w io.Writer, promos []Promotion, classNames map[int64]string) error
	}
)

type Service struct {
	logger    core.Logger
	tx        core.TxRunner
	repo      Repository
	dir       Directory
	registrar Registrar
	fees      FeeGenerator
	mailSvc   core.EmailService
	reports   ReportWriter

	now func() time.Time // mockable
}

func NewService(
	logger core.Logger,
	tx core.TxRunner,
	repo Repository,
	dir Directory,
	registrar Registrar,
	fees FeeGenerator,
	mailSvc core.EmailService,
	reports ReportWriter,
) *Service {
	return &Service{
		logger:    logger,
		tx:        tx,
		repo:      repo,
		dir:       dir,
		registrar: registrar,
		fees:      fees,
		mailSvc:   mailSvc,
		reports:   reports,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Assign records the teacher's decision for a student of their class, for the context session.
// Students and classes are left untouched until the rollover is executed.
func (svc *Service) Assign(ctx context.Context, sc academic.SessionContext, teacher user.User, req AssignRequest) (Promotion, error) {
	req.StudentPAN = core.CleanString(req.StudentPAN)
	req.Remarks = core.CleanString(req.Remarks)

	student, err := svc.dir.GetStudent(ctx, sc.SchoolID, req.StudentPAN)
	if err != nil {
		return Promotion{}, err
	}
	if student.ClassID == nil {
		return Promotion{}, core.NewArgumentError("student %s is not assigned to any class", student.PAN)
	}

	class, err := svc.dir.GetClass(ctx, sc.SchoolID, *student.ClassID)
	if err != nil {
		return Promotion{}, errors.Wrap(err, "getting current class")
	}
	if teacher.SchoolID != sc.SchoolID || class.ClassTeacherID == 0 || teacher.ID != class.ClassTeacherID {
		return Promotion{}, core.NewAuthorizationError("only the class teacher of %s can assign its promotions", class.Name)
	}
	if class.SessionID != sc.Session.ID {
		return Promotion{}, core.NewArgumentError(
			"class %s does not belong to the active session %s", class.Name, sc.Session.Name,
		)
	}

	decision, remarks, err := svc.resolveDecision(ctx, sc.SchoolID, class, req)
	if err != nil {
		return Promotion{}, err
	}

	existing, err := svc.repo.GetStudentPromotion(ctx, sc.SchoolID, student.PAN, sc.Session.ID)
	switch {
	case err == nil:
		if !existing.IsPending() {
			return Promotion{}, core.NewArgumentError(
				"promotion of student %s is already %s", student.PAN, existing.Status,
			)
		}
	case !core.IsNotFound(err):
		return Promotion{}, errors.Wrap(err, "getting student promotion")
	}

	now := svc.now()
	p := Promotion{
		SchoolID:      sc.SchoolID,
		StudentPAN:    student.PAN,
		FromClassID:   class.ID,
		FromSessionID: sc.Session.ID,
		AssignedByID:  teacher.ID,
		Status:        StatusPending,
		Remarks:       remarks,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.setDecision(decision)

	p, err = svc.repo.UpsertPromotion(ctx, p)
	if err != nil {
		return Promotion{}, errors.Wrap(err, "saving promotion")
	}
	return p, nil
}

// resolveDecision applies the first matching rule: graduated, detained, target class, else detained.
func (svc *Service) resolveDecision(
	ctx context.Context,
	schoolID int64,
	current academic.Class,
	req AssignRequest,
) (Decision, string, error) {
	var (
		decision Decision
		remarks  string
	)
	detainedRemarks := "Detained in " + current.Name

	switch {
	case req.IsGraduated:
		decision, remarks = Graduate(), "Graduated"
	case req.IsDetained:
		decision, remarks = Detain(current.ID), detainedRemarks
	case req.ToClassID != nil:
		target, err := svc.dir.GetClass(ctx, schoolID, *req.ToClassID)
		if err != nil {
			return Decision{}, "", err
		}
		if target.ID == current.ID {
			decision, remarks = Detain(current.ID), detainedRemarks
		} else {
			decision, remarks = PromoteTo(target.ID), "Promoted to "+target.Name
		}
	default:
		decision, remarks = Detain(current.ID), detainedRemarks
	}

	if req.Remarks != "" {
		remarks = req.Remarks
	}
	return decision, remarks, nil
}

// ListByClass returns the promotions assigned to the students of a class for the session.
func (svc *Service) ListByClass(ctx context.Context, schoolID, classID, sessionID int64) ([]Promotion, error) {
	return svc.repo.QueryPromotions(ctx, Filter{SchoolID: schoolID, FromClassID: classID, FromSessionID: sessionID})
}

// GetForStudent fails with a core.NotFoundError when no promotion was assigned yet.
func (svc *Service) GetForStudent(ctx context.Context, schoolID int64, pan string, sessionID int64) (Promotion, error) {
	return svc.repo.GetStudentPromotion(ctx, schoolID, core.CleanString(pan), sessionID)
}

func (svc *Service) ListPending(ctx context.Context, schoolID, sessionID int64) ([]Promotion, error) {
	return svc.repo.QueryPromotions(ctx, Filter{SchoolID: schoolID, FromSessionID: sessionID, Status: StatusPending})
}

func (svc *Service) ListBySession(ctx context.Context, schoolID, sessionID int64) ([]Promotion, error) {
	return svc.repo.QueryPromotions(ctx, Filter{SchoolID: schoolID, FromSessionID: sessionID})
}

// Delete removes a PENDING promotion. Only the teacher who assigned it or the class teacher may do so.
func (svc *Service) Delete(ctx context.Context, actor user.User, id int64) error {
	p, err := svc.repo.GetPromotion(ctx, actor.SchoolID, id)
	if err != nil {
		return err
	}
	if !p.IsPending() {
		return core.NewArgumentError("promotion is already %s and cannot be deleted", p.Status)
	}

	if actor.ID != p.AssignedByID {
		class, err := svc.dir.GetClass(ctx, actor.SchoolID, p.FromClassID)
		if err != nil {
			return errors.Wrap(err, "getting class")
		}
		if class.ClassTeacherID == 0 || class.ClassTeacherID != actor.ID {
			return core.NewAuthorizationError("only the class teacher of %s can delete its promotions", class.Name)
		}
	}
	return svc.repo.DeletePromotion(ctx, actor.SchoolID, p.ID)
}

// ExportSession writes all the promotions of a session as a spreadsheet.
func (svc *Service) ExportSession(ctx context.Context, schoolID, sessionID int64, w io.Writer) error {
	if svc.reports == nil {
		return errors.New("no report writer configured")
	}
	if _, err := svc.dir.GetSession(ctx, schoolID, sessionID); err != nil {
		return err
	}
	promos, err := svc.ListBySession(ctx, schoolID, sessionID)
	if err != nil {
		return errors.Wrap(err, "querying promotions")
	}

	names := make(map[int64]string)
	for _, p := range promos {
		ids := []int64{p.FromClassID}
		if p.ToClassID != nil {
			ids = append(ids, *p.ToClassID)
		}
		for _, id := range ids {
			if _, ok := names[id]; ok {
				continue
			}
			class, err := svc.dir.GetClass(ctx, schoolID, id)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return errors.Wrap(err, "getting class")
			}
			names[id] = class.Name
		}
	}
	return svc.reports.WritePromotions(w, promos, names)
}

// sendReport emails the report to the user who requested the rollover.
func (svc *Service) sendReport(to *user.User, rep Report) {
	if to == nil || to.Email == "" || svc.mailSvc == nil {
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: to.Name, Address: to.Email}},
		Subject:      fmt.Sprintf("Session rollover %s -> %s", rep.FromSession, rep.ToSession),
		TemplateName: "rollover_report",
		TemplateData: rep,
	}
	if svc.reports != nil {
		var buf bytes.Buffer
		if err := svc.reports.WriteReport(&buf, rep); err != nil {
			svc.logger.Error(fmt.Sprintf("writing rollover report %s: %v", rep.RunID, err), err)
		} else if err = msg.Attach(&buf, "rollover-"+rep.RunID.String()+".xlsx", xlsxContentType); err != nil {
			svc.logger.Error(fmt.Sprintf("attaching rollover report %s: %v", rep.RunID, err), err)
		}
	}
	svc.mailSvc.SendMessages(msg)
}

func newReport(school academic.School, from, to academic.Session, startedAt time.Time) Report {
	return Report{
		RunID:         uuid.New(),
		SchoolID:      school.ID,
		FromSessionID: from.ID,
		FromSession:   from.Name,
		ToSessionID:   to.ID,
		ToSession:     to.Name,
		Outcomes:      make([]StudentOutcome, 0),
		StartedAt:     startedAt,
	}
}
