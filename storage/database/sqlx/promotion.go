package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/promotion"
)

type promotionRow struct {
	ID            int64      `db:"id"`
	SchoolID      int64      `db:"school_id"`
	StudentPAN    string     `db:"student_pan"`
	FromClassID   int64      `db:"from_class_id"`
	FromSessionID int64      `db:"from_session_id"`
	Decision      string     `db:"decision"`
	ToClassID     null.Int64 `db:"to_class_id"`
	ToSessionID   null.Int64 `db:"to_session_id"`
	AssignedByID  null.Int64 `db:"assigned_by_id"`
	Status        string     `db:"status"`
	Remarks       string     `db:"remarks"`
	IsGraduated   bool       `db:"is_graduated"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	ExecutedAt    null.Time  `db:"executed_at"`
}

func boilPromotion(p promotion.Promotion) promotionRow {
	return promotionRow{
		ID:            p.ID,
		SchoolID:      p.SchoolID,
		StudentPAN:    p.StudentPAN,
		FromClassID:   p.FromClassID,
		FromSessionID: p.FromSessionID,
		Decision:      string(p.Decision),
		ToClassID:     null.Int64FromPtr(p.ToClassID),
		ToSessionID:   null.Int64FromPtr(p.ToSessionID),
		AssignedByID:  null.NewInt64(p.AssignedByID, p.AssignedByID != 0),
		Status:        string(p.Status),
		Remarks:       p.Remarks,
		IsGraduated:   p.IsGraduated,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		ExecutedAt:    null.TimeFromPtr(p.ExecutedAt),
	}
}

func (r promotionRow) unboil() promotion.Promotion {
	p := promotion.Promotion{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		StudentPAN:    r.StudentPAN,
		FromClassID:   r.FromClassID,
		FromSessionID: r.FromSessionID,
		Decision:      promotion.DecisionKind(r.Decision),
		ToClassID:     r.ToClassID.Ptr(),
		ToSessionID:   r.ToSessionID.Ptr(),
		AssignedByID:  r.AssignedByID.Int64,
		Status:        promotion.Status(r.Status),
		Remarks:       r.Remarks,
		IsGraduated:   r.IsGraduated,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.ExecutedAt.Valid {
		at := r.ExecutedAt.Time.UTC()
		p.ExecutedAt = &at
	}
	return p
}

const promotionColumns = `id, school_id, student_pan, from_class_id, from_session_id, decision, to_class_id, to_session_id,
	assigned_by_id, status, remarks, is_graduated, created_at, updated_at, executed_at`

type promotionRepository struct {
	db *sql.DB
}

var _ promotion.Repository = (*promotionRepository)(nil)

func NewPromotionRepository(db *sql.DB) *promotionRepository {
	return &promotionRepository{db: db}
}

func (repo *promotionRepository) queryPromotions(
	ctx context.Context,
	exec []core.DBExecutor,
	where string,
	args ...interface{},
) ([]promotion.Promotion, error) {
	var rows []promotionRow
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE ` + where + ` ORDER BY student_pan`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting promotions")
	}
	promos := make([]promotion.Promotion, 0, len(rows))
	for _, r := range rows {
		promos = append(promos, r.unboil())
	}
	return promos, nil
}

func (repo *promotionRepository) UpsertPromotion(
	ctx context.Context,
	p promotion.Promotion,
	exec ...core.DBExecutor,
) (promotion.Promotion, error) {
	r := boilPromotion(p)

	var rows []promotionRow
	err := selectRows(ctx, getExec(repo.db, exec), &rows,
		`INSERT INTO promotions (school_id, student_pan, from_class_id, from_session_id, decision, to_class_id,
			assigned_by_id, status, remarks, is_graduated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT ON CONSTRAINT promotions_student_session_key DO UPDATE SET
			from_class_id  = EXCLUDED.from_class_id,
			decision       = EXCLUDED.decision,
			to_class_id    = EXCLUDED.to_class_id,
			assigned_by_id = EXCLUDED.assigned_by_id,
			remarks        = EXCLUDED.remarks,
			is_graduated   = EXCLUDED.is_graduated,
			updated_at     = EXCLUDED.updated_at
		WHERE promotions.status = 'PENDING'
		RETURNING `+promotionColumns,
		r.SchoolID, r.StudentPAN, r.FromClassID, r.FromSessionID, r.Decision, r.ToClassID,
		r.AssignedByID, r.Status, r.Remarks, r.IsGraduated, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "upserting promotion")
	}
	if len(rows) == 0 {
		return promotion.Promotion{}, core.NewArgumentError("promotion of student %s was already executed", p.StudentPAN)
	}
	return rows[0].unboil(), nil
}

func (repo *promotionRepository) GetPromotion(
	ctx context.Context,
	schoolID, id int64,
	exec ...core.DBExecutor,
) (promotion.Promotion, error) {
	promos, err := repo.queryPromotions(ctx, exec, `school_id = $1 AND id = $2`, schoolID, id)
	if err != nil {
		return promotion.Promotion{}, err
	}
	if len(promos) == 0 {
		return promotion.Promotion{}, core.NewNotFoundError("promotion %d not found", id)
	}
	return promos[0], nil
}

func (repo *promotionRepository) GetStudentPromotion(
	ctx context.Context,
	schoolID int64,
	pan string,
	sessionID int64,
	exec ...core.DBExecutor,
) (promotion.Promotion, error) {
	promos, err := repo.queryPromotions(ctx, exec,
		`school_id = $1 AND student_pan = $2 AND from_session_id = $3`, schoolID, pan, sessionID)
	if err != nil {
		return promotion.Promotion{}, err
	}
	if len(promos) == 0 {
		return promotion.Promotion{}, core.NewNotFoundError("no promotion for student %s in session %d", pan, sessionID)
	}
	return promos[0], nil
}

func (repo *promotionRepository) QueryPromotions(
	ctx context.Context,
	filter promotion.Filter,
	exec ...core.DBExecutor,
) ([]promotion.Promotion, error) {
	return repo.queryPromotions(ctx, exec,
		`($1::BIGINT = 0 OR school_id = $1)
		AND ($2::BIGINT = 0 OR from_session_id = $2)
		AND ($3::BIGINT = 0 OR from_class_id = $3)
		AND ($4::TEXT = '' OR status = $4)`,
		filter.SchoolID, filter.FromSessionID, filter.FromClassID, string(filter.Status),
	)
}

func (repo *promotionRepository) UpdatePromotion(
	ctx context.Context,
	p promotion.Promotion,
	exec ...core.DBExecutor,
) (promotion.Promotion, error) {
	r := boilPromotion(p)
	res, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE promotions SET decision = $3, to_class_id = $4, to_session_id = $5, status = $6, remarks = $7,
			is_graduated = $8, updated_at = $9, executed_at = $10
		WHERE school_id = $1 AND id = $2`,
		r.SchoolID, r.ID, r.Decision, r.ToClassID, r.ToSessionID, r.Status, r.Remarks,
		r.IsGraduated, r.UpdatedAt, r.ExecutedAt,
	)
	if err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "updating promotion")
	}
	if err = checkAffected(res, core.NewNotFoundError("promotion %d not found", p.ID)); err != nil {
		return promotion.Promotion{}, err
	}
	return p, nil
}

func (repo *promotionRepository) DeletePromotion(ctx context.Context, schoolID, id int64, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`DELETE FROM promotions WHERE school_id = $1 AND id = $2 AND status = $3`,
		schoolID, id, string(promotion.StatusPending),
	)
	if err != nil {
		return errors.Wrap(err, "deleting promotion")
	}
	return checkAffected(res, core.NewNotFoundError("pending promotion %d not found", id))
}
