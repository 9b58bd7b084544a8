package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
)

var userColumns = []string{
	"id", "name", "email", "privilege", "email_verified", "society_id", "society_role", "password_hash", "created_at",
	"updated_at", "last_login",
}

// resolvedPrivilege is the SQL rendition of privilege.Resolve.
const resolvedPrivilege = `CASE WHEN privilege IN (0, 1, 2) THEN privilege ELSE 0 END`

type userRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Email         string      `db:"email"`
	Privilege     null.Int64  `db:"privilege"`
	EmailVerified bool        `db:"email_verified"`
	SocietyID     null.String `db:"society_id"`
	SocietyRole   null.String `db:"society_role"`
	PasswordHash  null.Bytes  `db:"password_hash"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	LastLogin     null.Time   `db:"last_login"`
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Privilege:     privilege.Unset,
		EmailVerified: r.EmailVerified,
		SocietyID:     r.SocietyID.Ptr(),
		SocietyRole:   r.SocietyRole.Ptr(),
		PasswordHash:  r.PasswordHash.Bytes,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		LastLogin:     utcPtr(r.LastLogin.Ptr()),
	}
	if r.Privilege.Valid {
		usr.Privilege = privilege.Level(r.Privilege.Int64)
	}
	return usr
}

func privilegeArg(l privilege.Level) null.Int64 {
	return null.NewInt64(int64(l), l != privilege.Unset)
}

// bytesArg sends empty values as NULL.
func bytesArg(b []byte) null.Bytes {
	return null.NewBytes(b, len(b) > 0)
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{repository{db: db}}
}

func (repo *userRepository) EmailExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	query := exists(psql.Select("1").From("users").Where(sq.Eq{"email": email}))
	if err := repo.getContext(ctx, exec, &found, query); err != nil {
		return false, errors.Wrap(err, "checking email")
	}
	return found, nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	query := psql.Insert("users").Columns(userColumns...).Values(
		usr.ID, usr.Name, usr.Email, privilegeArg(usr.Privilege), usr.EmailVerified,
		null.StringFromPtr(usr.SocietyID), null.StringFromPtr(usr.SocietyRole), bytesArg(usr.PasswordHash),
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), nullTime(usr.LastLogin),
	)
	if _, err := repo.execContext(ctx, exec, query); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getBy(ctx context.Context, col, val, suffix string, exec []core.DBExecutor) (user.User, error) {
	var row userRow
	query := psql.Select(userColumns...).From("users").Where(sq.Eq{col: val})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by "+col)
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, "id", id, "", exec)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, "email", email, "", exec)
}

// GetUserByEmailForUpdate locks the row until the end of the transaction running exec.
func (repo *userRepository) GetUserByEmailForUpdate(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, "email", email, "FOR UPDATE", exec)
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := psql.Select(userColumns...).From("users")
	if filter != nil {
		if filter.Search != "" {
			pattern := likePattern(filter.Search)
			query = query.Where(`(name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\')`, pattern, pattern)
		}
		if len(filter.Privileges) > 0 {
			levels := make([]int64, 0, len(filter.Privileges))
			for _, p := range filter.Privileges {
				levels = append(levels, int64(p))
			}
			query = query.Where(resolvedPrivilege+" = ANY(?)", pq.Array(levels))
		}
		if filter.EmailVerified != nil {
			query = query.Where(sq.Eq{"email_verified": *filter.EmailVerified})
		}
		if filter.SocietyID != "" {
			query = query.Where(sq.Eq{"society_id": filter.SocietyID})
		}
	}
	query = query.OrderBy(orderBy(ordering, "created_at ASC")...)

	var rows []userRow
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	query := psql.Update("users").
		Set("name", usr.Name).
		Set("email_verified", usr.EmailVerified).
		Set("password_hash", sq.Expr("COALESCE(?, password_hash)", bytesArg(usr.PasswordHash))).
		Set("last_login", sq.Expr("COALESCE(?, last_login)", nullTime(usr.LastLogin))).
		Set("updated_at", usr.UpdatedAt.UTC()).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdatePrivilege(ctx context.Context, id string, level privilege.Level, societyID, role *string, updatedAt time.Time, exec ...core.DBExecutor) error {
	query := psql.Update("users").
		Set("privilege", privilegeArg(level)).
		Set("society_id", null.StringFromPtr(societyID)).
		Set("society_role", null.StringFromPtr(role)).
		Set("updated_at", updatedAt.UTC()).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "updating user privilege")
	}
	return checkAffected(res, user.ErrNotFound, "updating user privilege")
}

func (repo *userRepository) CountUsersByPrivilege(ctx context.Context, exec ...core.DBExecutor) (map[privilege.Level]int, error) {
	var rows []struct {
		Level int `db:"level"`
		Count int `db:"count"`
	}
	query := psql.Select(resolvedPrivilege+" AS level", "COUNT(*) AS count").From("users").GroupBy("level")
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "counting users")
	}
	counts := make(map[privilege.Level]int, len(rows))
	for _, r := range rows {
		counts[privilege.Level(r.Level)] = r.Count
	}
	return counts, nil
}
