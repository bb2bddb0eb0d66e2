package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"imaro-auth/backend/internal/user/domain"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool used by PostgresRepository; pgxmock pools satisfy it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var userColumns = []string{
	"id::text",
	"external_id",
	"auth_method",
	"phone_number",
	"email",
	"first_name",
	"last_name",
	"age",
	"gender",
	"country",
	"is_active",
	"is_phone_verified",
	"is_email_verified",
	"profile_completed",
	"privacy_policy_accepted",
	"terms_accepted",
	"privacy_policy_version",
	"terms_version",
	"last_login_at",
	"created_at",
	"updated_at",
}

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db      DB
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewPostgresRepository returns a user repository backed by db.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock overrides the time used for updated_at. Intended for tests.
func (r *PostgresRepository) WithClock(now func() time.Time) *PostgresRepository {
	r.now = now
	return r
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, r.db, squirrel.Eq{"id": id}, false)
}

// GetByExternalID returns the user with the given external subject id, or nil if not found.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.getOne(ctx, r.db, squirrel.Eq{"external_id": externalID}, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) getOne(ctx context.Context, q queryRower, where squirrel.Eq, forUpdate bool) (*domain.User, error) {
	b := r.builder.Select(userColumns...).From("users").Where(where)
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}
	u, err := scanUser(q.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// Create inserts u. The caller assigns ID and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	stmt, args, err := r.builder.Insert("users").
		Columns(
			"id",
			"external_id",
			"auth_method",
			"phone_number",
			"email",
			"first_name",
			"last_name",
			"age",
			"gender",
			"country",
			"is_active",
			"is_phone_verified",
			"is_email_verified",
			"profile_completed",
			"privacy_policy_accepted",
			"terms_accepted",
			"privacy_policy_version",
			"terms_version",
			"last_login_at",
			"created_at",
			"updated_at",
		).
		Values(
			u.ID,
			u.ExternalID,
			string(u.AuthMethod),
			optionalString(u.Phone),
			optionalString(u.Email),
			u.FirstName,
			u.LastName,
			optionalInt(u.Age),
			optionalString(string(u.Gender)),
			optionalString(u.Country),
			u.Active,
			u.PhoneVerified,
			u.EmailVerified,
			u.ProfileCompleted,
			u.PrivacyAccepted,
			u.TermsAccepted,
			optionalString(u.PrivacyVersion),
			optionalString(u.TermsVersion),
			optionalTime(u.LastLoginAt),
			u.CreatedAt.UTC(),
			u.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update implements Repository using SELECT ... FOR UPDATE so concurrent updates of one user
// are applied one after another.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn MutateFunc) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin user update: %w", err)
	}
	u, err := r.updateInTx(ctx, tx, id, fn)
	if err != nil || u == nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit user update: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) updateInTx(ctx context.Context, tx pgx.Tx, id string, fn MutateFunc) (*domain.User, error) {
	u, err := r.getOne(ctx, tx, squirrel.Eq{"id": id}, true)
	if err != nil || u == nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = r.now().UTC()

	stmt, args, err := r.builder.Update("users").
		Set("email", optionalString(u.Email)).
		Set("first_name", u.FirstName).
		Set("last_name", u.LastName).
		Set("age", optionalInt(u.Age)).
		Set("gender", optionalString(string(u.Gender))).
		Set("country", optionalString(u.Country)).
		Set("is_active", u.Active).
		Set("is_phone_verified", u.PhoneVerified).
		Set("is_email_verified", u.EmailVerified).
		Set("profile_completed", u.ProfileCompleted).
		Set("privacy_policy_accepted", u.PrivacyAccepted).
		Set("terms_accepted", u.TermsAccepted).
		Set("privacy_policy_version", optionalString(u.PrivacyVersion)).
		Set("terms_version", optionalString(u.TermsVersion)).
		Set("last_login_at", optionalTime(u.LastLoginAt)).
		Set("updated_at", u.UpdatedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// Delete removes the user row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.Delete("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete user sql: %w", err)
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u              domain.User
		authMethod     string
		phone, email   sql.NullString
		first, last    sql.NullString
		age            sql.NullInt32
		gender         sql.NullString
		country        sql.NullString
		privacyVersion sql.NullString
		termsVersion   sql.NullString
		lastLogin      sql.NullTime
	)
	if err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&authMethod,
		&phone,
		&email,
		&first,
		&last,
		&age,
		&gender,
		&country,
		&u.Active,
		&u.PhoneVerified,
		&u.EmailVerified,
		&u.ProfileCompleted,
		&u.PrivacyAccepted,
		&u.TermsAccepted,
		&privacyVersion,
		&termsVersion,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.AuthMethod = domain.AuthMethod(authMethod)
	u.Phone = phone.String
	u.Email = email.String
	u.FirstName = first.String
	u.LastName = last.String
	if age.Valid {
		v := int(age.Int32)
		u.Age = &v
	}
	u.Gender = domain.Gender(gender.String)
	u.Country = country.String
	u.PrivacyVersion = privacyVersion.String
	u.TermsVersion = termsVersion.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func optionalString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
