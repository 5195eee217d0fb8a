package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fee"
)

type (
	structureRow struct {
		ID        int64 `db:"id"`
		SchoolID  int64 `db:"school_id"`
		ClassID   int64 `db:"class_id"`
		SessionID int64 `db:"session_id"`
		Amount    int64 `db:"amount"`
	}

	feeRow struct {
		ID          int64     `db:"id"`
		SchoolID    int64     `db:"school_id"`
		StudentPAN  string    `db:"student_pan"`
		StructureID int64     `db:"structure_id"`
		ClassID     int64     `db:"class_id"`
		SessionID   int64     `db:"session_id"`
		Month       int       `db:"month"`
		Year        int       `db:"year"`
		Amount      int64     `db:"amount"`
		Status      string    `db:"status"`
		DueDate     time.Time `db:"due_date"`
	}
)

func (r structureRow) unboil() fee.Structure {
	return fee.Structure(r)
}

func (r feeRow) unboil() fee.Fee {
	return fee.Fee{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		StudentPAN:  r.StudentPAN,
		StructureID: r.StructureID,
		ClassID:     r.ClassID,
		SessionID:   r.SessionID,
		Month:       time.Month(r.Month),
		Year:        r.Year,
		Amount:      r.Amount,
		Status:      fee.Status(r.Status),
		DueDate:     r.DueDate.UTC(),
	}
}

const (
	structureColumns = `id, school_id, class_id, session_id, amount`
	feeColumns       = `id, school_id, student_pan, structure_id, class_id, session_id, month, year, amount, status, due_date`
)

type feeRepository struct {
	db *sql.DB
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db *sql.DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) GetStructure(
	ctx context.Context,
	schoolID, classID, sessionID int64,
	exec ...core.DBExecutor,
) (fee.Structure, error) {
	var rows []structureRow
	q := `SELECT ` + structureColumns + ` FROM fee_structures WHERE school_id = $1 AND class_id = $2 AND session_id = $3`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, schoolID, classID, sessionID); err != nil {
		return fee.Structure{}, errors.Wrap(err, "selecting fee structure")
	}
	if len(rows) == 0 {
		return fee.Structure{}, core.NewNotFoundError("no fee structure for class %d in session %d", classID, sessionID)
	}
	return rows[0].unboil(), nil
}

func (repo *feeRepository) CreateStructure(ctx context.Context, st fee.Structure, exec ...core.DBExecutor) (fee.Structure, error) {
	err := getExec(repo.db, exec).QueryRowContext(
		ctx,
		`INSERT INTO fee_structures (school_id, class_id, session_id, amount) VALUES ($1, $2, $3, $4) RETURNING id`,
		st.SchoolID, st.ClassID, st.SessionID, st.Amount,
	).Scan(&st.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fee.Structure{}, core.NewAlreadyExistsError(
				"class %d already has a fee structure for session %d", st.ClassID, st.SessionID,
			)
		}
		return fee.Structure{}, errors.Wrap(err, "inserting fee structure")
	}
	return st, nil
}

func (repo *feeRepository) CreateFeeIfNotExists(ctx context.Context, f fee.Fee, exec ...core.DBExecutor) (fee.Fee, bool, error) {
	ex := getExec(repo.db, exec)

	var rows []feeRow
	err := selectRows(ctx, ex, &rows,
		`INSERT INTO fees (school_id, student_pan, structure_id, class_id, session_id, month, year, amount, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT fees_student_month_year_session_key DO NOTHING
		RETURNING `+feeColumns,
		f.SchoolID, f.StudentPAN, f.StructureID, f.ClassID, f.SessionID, int(f.Month), f.Year, f.Amount, string(f.Status), f.DueDate,
	)
	if err != nil {
		return fee.Fee{}, false, errors.Wrap(err, "inserting fee")
	}
	if len(rows) > 0 {
		return rows[0].unboil(), true, nil
	}

	err = selectRows(ctx, ex, &rows,
		`SELECT `+feeColumns+` FROM fees
		WHERE school_id = $1 AND student_pan = $2 AND month = $3 AND year = $4 AND session_id = $5`,
		f.SchoolID, f.StudentPAN, int(f.Month), f.Year, f.SessionID,
	)
	if err != nil {
		return fee.Fee{}, false, errors.Wrap(err, "selecting fee")
	}
	if len(rows) == 0 {
		return fee.Fee{}, false, errors.New("fee conflict without existing row")
	}
	return rows[0].unboil(), false, nil
}

func (repo *feeRepository) QueryFees(ctx context.Context, filter fee.Filter, exec ...core.DBExecutor) ([]fee.Fee, error) {
	var rows []feeRow
	q := `SELECT ` + feeColumns + ` FROM fees
		WHERE ($1::BIGINT = 0 OR school_id = $1)
		  AND ($2::TEXT = '' OR student_pan = $2)
		  AND ($3::BIGINT = 0 OR session_id = $3)
		  AND ($4::TEXT = '' OR status = $4)
		ORDER BY due_date, id`
	err := selectRows(ctx, getExec(repo.db, exec), &rows, q,
		filter.SchoolID, filter.StudentPAN, filter.SessionID, string(filter.Status))
	if err != nil {
		return nil, errors.Wrap(err, "selecting fees")
	}
	fees := make([]fee.Fee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.unboil())
	}
	return fees, nil
}

func (repo *feeRepository) MarkOverdue(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE fees SET status = $1 WHERE status = $2 AND due_date < $3`,
		string(fee.StatusOverdue), string(fee.StatusPending), asOf,
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking fees overdue")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "counting overdue fees")
}
