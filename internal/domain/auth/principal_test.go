package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		p       Principal
		roles   []Role
		wantErr error
	}{
		{name: "matching role", p: Principal{UserID: 1, Role: RoleAdmin}, roles: []Role{RoleAdmin}},
		{name: "one of several", p: Principal{UserID: 1, Role: RoleStaff}, roles: []Role{RoleAdmin, RoleStaff}},
		{name: "wrong role", p: Principal{UserID: 1, Role: RoleCustomer}, roles: []Role{RoleStaff}, wantErr: ErrForbidden},
		{name: "anonymous", p: Principal{}, roles: []Role{RoleCustomer}, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(tt.p, tt.roles...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 7, Role: RoleStaff})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, RoleStaff, p.Role)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleCustomer.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("root").Valid())
}
