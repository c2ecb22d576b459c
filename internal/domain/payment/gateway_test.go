package payment

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlwaysApprove(t *testing.T) {
	d, err := AlwaysApprove(0).Authorize(context.Background(), Charge{OrderID: "o"})
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, SimulatedGatewayName, d.Gateway)
	assert.True(t, strings.HasPrefix(d.TransactionID, "ZPAY-"))
}

func TestSimulated_TransactionIDsUnique(t *testing.T) {
	g := AlwaysApprove(0)
	seen := make(map[string]bool)
	for range 100 {
		d, err := g.Authorize(context.Background(), Charge{})
		require.NoError(t, err)
		require.False(t, seen[d.TransactionID])
		seen[d.TransactionID] = true
	}
}

func TestSimulated_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AlwaysApprove(time.Hour).Authorize(ctx, Charge{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWeighted(t *testing.T) {
	tests := []struct {
		name             string
		success, failure int
		wantMin, wantMax int
	}{
		{name: "AlwaysFail", success: 0, failure: 1, wantMin: 0, wantMax: 0},
		{name: "AlwaysSucceed", success: 1, failure: 0, wantMin: 1000, wantMax: 1000},
		{name: "EightyTwenty", success: 80, failure: 20, wantMin: 740, wantMax: 860},
		{name: "ZeroWeightsApprove", success: 0, failure: 0, wantMin: 1000, wantMax: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Weighted(0, tt.success, tt.failure, rand.New(rand.NewPCG(1, 2)))
			var approved int
			for range 1000 {
				d, err := g.Authorize(context.Background(), Charge{})
				require.NoError(t, err)
				if d.Approved {
					approved++
				}
			}
			assert.GreaterOrEqual(t, approved, tt.wantMin)
			assert.LessOrEqual(t, approved, tt.wantMax)
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    Method
		wantErr bool
	}{
		{input: "", want: MethodZPay},
		{input: "zpay", want: MethodZPay},
		{input: " COD ", want: MethodCOD},
		{input: "card", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMethod(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
