package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRow struct {
	ID           int64          `db:"id"`
	SchoolID     int64          `db:"school_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func boilUser(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		SchoolID:     usr.SchoolID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    null.TimeFromPtr(usr.LastLogin),
	}
}

func (r userRow) unboil() user.User {
	usr := user.User{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		at := r.LastLogin.Time.UTC()
		usr.LastLogin = &at
	}
	return usr
}

const userColumns = `id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sql.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]int64, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users
		WHERE ((username <> '' AND username = $1) OR (email <> '' AND email = $2))
		  AND NOT (id = ANY($3::BIGINT[]))
		LIMIT 1`
	if err := selectRows(ctx, repo.db, &rows, q, username, email, pq.Array(exclIDs)); err != nil {
		return errors.Wrap(err, "selecting users")
	}
	if len(rows) == 0 {
		return nil
	}
	if username != "" && rows[0].Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := boilUser(usr)
	err := getExec(repo.db, exec).QueryRowContext(
		ctx,
		`INSERT INTO users (school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		r.SchoolID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin,
	).Scan(&usr.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewValidationError(user.ErrUsernameExists)
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		rows  []userRow
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != 0:
		where, args = `id = $1`, []interface{}{filter.ID}
	case len(filter.UsernameOrEmail) > 0:
		where = `(username <> '' AND username = ANY($1::TEXT[])) OR (email <> '' AND email = ANY($1::TEXT[]))`
		args = []interface{}{pq.Array(filter.UsernameOrEmail)}
	default:
		return user.User{}, user.ErrNotFound
	}

	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` ORDER BY id LIMIT 1`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	if len(rows) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return rows[0].unboil(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := boilUser(usr)
	res, err := getExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE users SET name = $2, username = $3, email = $4, is_active = $5, roles = $6, password_hash = $7,
			updated_at = $8, last_login = $9
		WHERE id = $1`,
		r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.UpdatedAt, r.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}
