package seed_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/memstore"
	"github.com/xenking/storefront-fulfillment/internal/seed"
)

func store(s *memstore.Store) seed.Store {
	return seed.Store{Users: s.Users(), APIKeys: s.APIKeys(), Products: s.Products(), Coupons: s.Coupons()}
}

func TestDemo(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	hash := func(key string) string { return "h:" + key }

	res, err := seed.Demo(ctx, store(s), seed.Options{
		Accounts: seed.DefaultAccounts("a", "s", "c"),
		Hash:     hash,
	})
	require.NoError(t, err)
	require.Len(t, res.Users, 3)
	require.Len(t, res.Coupons, 2)

	products, err := s.Products().List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, len(seed.Catalog))

	key, err := s.APIKeys().FindByHash(ctx, "h:s")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, key.Role)
	assert.Equal(t, res.Users["staff@example.com"], key.UserID)

	customer := res.Users["customer@example.com"]
	_, err = s.Users().DefaultAddress(ctx, customer)
	require.NoError(t, err)
	assigned, err := s.Coupons().ListAssigned(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, assigned, 2)

	_, err = s.Users().DefaultAddress(ctx, res.Users["admin@example.com"])
	assert.Error(t, err)

	// Coupons are matched by code on a second run.
	again, err := seed.Demo(ctx, store(s), seed.Options{Hash: hash})
	require.NoError(t, err)
	assert.Equal(t, res.Coupons, again.Coupons)
	all, err := s.Coupons().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadProducts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "string and number prices",
			input: `[{"id":"1","name":"Waffle","price":"6.50","category":"Waffle","image":{"thumbnail":"x"}},{"id":"2","name":"Pie","price":5}]`,
			want:  []string{"6.5", "5"},
		},
		{name: "empty", input: `[]`},
		{name: "missing id", input: `[{"name":"x","price":1}]`, wantErr: true},
		{name: "bad price", input: `[{"id":"1","price":"free"}]`, wantErr: true},
		{name: "not an array", input: `{"id":"1"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := seed.LoadProducts(strings.NewReader(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, products, len(tt.want))
			for i, p := range products {
				assert.Equal(t, tt.want[i], p.Price.String())
				assert.True(t, p.Active)
			}
		})
	}
}
