package memstore

import (
	"context"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// Users implements user.Repository.
type Users struct{ s *Store }

// Users returns the user repository.
func (s *Store) Users() *Users { return &Users{s: s} }

// Create stores u and assigns its ID.
func (r *Users) Create(ctx context.Context, u *user.User) error {
	return r.s.write(ctx, func(st *state) error {
		u.ID = st.nextID()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = r.s.now()
		}
		st.users[u.ID] = *u
		return nil
	})
}

// GetByID implements user.Repository.
func (r *Users) GetByID(_ context.Context, id int64) (*user.User, error) {
	var out user.User
	err := r.s.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return user.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddAddress stores a and assigns its ID. A default address replaces the
// previous default of the same user.
func (r *Users) AddAddress(ctx context.Context, a *user.Address) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.users[a.UserID]; !ok {
			return user.ErrNotFound
		}
		if a.IsDefault {
			for id, cur := range st.addresses {
				if cur.UserID == a.UserID && cur.IsDefault {
					cur.IsDefault = false
					st.addresses[id] = cur
				}
			}
		}
		a.ID = st.nextID()
		st.addresses[a.ID] = *a
		return nil
	})
}

// DefaultAddress implements user.Repository.
func (r *Users) DefaultAddress(_ context.Context, userID int64) (*user.Address, error) {
	var out user.Address
	err := r.s.read(func(st *state) error {
		for _, a := range st.addresses {
			if a.UserID == userID && a.IsDefault {
				out = a
				return nil
			}
		}
		return user.ErrNoDefaultAddress
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// APIKeys implements auth.Repository.
type APIKeys struct{ s *Store }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// Put stores k under its hash.
func (r *APIKeys) Put(ctx context.Context, k auth.APIKeyInfo) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.users[k.UserID]; !ok {
			return user.ErrNotFound
		}
		st.apiKeys[k.KeyHash] = cloneAPIKey(k)
		return nil
	})
}

// FindByHash implements auth.Repository.
func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	var out auth.APIKeyInfo
	err := r.s.read(func(st *state) error {
		k, ok := st.apiKeys[hash]
		if !ok {
			return auth.ErrKeyNotFound
		}
		out = cloneAPIKey(k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
