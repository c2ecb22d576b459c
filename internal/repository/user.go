package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

const (
	createUserSQL = `INSERT INTO users (email, name, role) VALUES ($1, $2, $3)
	ON CONFLICT ((LOWER(email))) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
	RETURNING id, created_at`

	getUserSQL = `SELECT id, email, name, role, created_at FROM users WHERE id = $1`

	clearDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`

	createAddressSQL = `INSERT INTO addresses
	(user_id, full_name, line1, line2, city, state, postal_code, country, phone, is_default)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

	getDefaultAddressSQL = `SELECT id, user_id, full_name, line1, line2, city, state, postal_code,
	country, phone, is_default
	FROM addresses WHERE user_id = $1 AND is_default`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create upserts u by email and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.db.q(ctx).QueryRow(ctx, createUserSQL, u.Email, u.Name, string(u.Role)).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "create user %q", u.Email)
	}
	return nil
}

// GetByID implements user.Repository.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.db.q(ctx).QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Email, &u.Name, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// AddAddress stores a. A default address replaces the previous default.
func (r *UserRepository) AddAddress(ctx context.Context, a *user.Address) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if a.IsDefault {
			if _, err := q.Exec(ctx, clearDefaultAddressSQL, a.UserID); err != nil {
				return errors.Wrap(err, "clear default address")
			}
		}
		err := q.QueryRow(ctx, createAddressSQL,
			a.UserID, a.FullName, a.Line1, a.Line2, a.City, a.State,
			a.PostalCode, a.Country, a.Phone, a.IsDefault,
		).Scan(&a.ID)
		if err != nil {
			if isForeignKey(err) {
				return user.ErrNotFound
			}
			return errors.Wrap(err, "create address")
		}
		return nil
	})
}

// DefaultAddress implements user.Repository.
func (r *UserRepository) DefaultAddress(ctx context.Context, userID int64) (*user.Address, error) {
	rows, err := r.db.q(ctx).Query(ctx, getDefaultAddressSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query default address")
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[user.Address])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNoDefaultAddress
		}
		return nil, errors.Wrap(err, "scan default address")
	}
	return &a, nil
}

const (
	getAPIKeyByHashSQL = `SELECT k.id, k.key_hash, k.name, k.user_id, u.role, k.scopes
	FROM api_keys k JOIN users u ON u.id = k.user_id
	WHERE k.key_hash = $1 AND k.active = TRUE`

	createAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
	user_id = EXCLUDED.user_id, scopes = EXCLUDED.scopes, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Put upserts k by ID.
func (r *APIKeyRepository) Put(ctx context.Context, k auth.APIKeyInfo) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := r.db.q(ctx).Exec(ctx, createAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, scopes); err != nil {
		if isForeignKey(err) {
			return user.ErrNotFound
		}
		return errors.Wrapf(err, "put api key %q", k.ID)
	}
	return nil
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		role string
	)
	err := r.db.q(ctx).QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.UserID, &role, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	info.Role = auth.Role(role)
	return &info, nil
}
