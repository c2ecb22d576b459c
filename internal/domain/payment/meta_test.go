package payment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMeta(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Meta
	}{
		{
			name:  "Empty",
			input: "",
			want:  Meta{},
		},
		{
			name:  "GatewayFields",
			input: `{"order_id":"o-1","method":"ZPAY","gateway":"Z-PAY-DUMMY"}`,
			want:  Meta{OrderID: "o-1", Method: "ZPAY", Gateway: "Z-PAY-DUMMY"},
		},
		{
			name:  "UnknownFieldsSkipped",
			input: `{"order_id":"o-2","extra":{"nested":[1,2,3]},"gateway":"G"}`,
			want:  Meta{OrderID: "o-2", Gateway: "G"},
		},
		{
			name: "Attempts",
			input: `{"order_id":"o-3","method":"ZPAY","gateway":"G","attempts":[` +
				`{"transaction_id":"ZPAY-a","status":"FAILED","at":"2026-03-01T10:00:00Z"}]}`,
			want: Meta{
				OrderID: "o-3", Method: "ZPAY", Gateway: "G",
				Attempts: []Attempt{{
					TransactionID: "ZPAY-a",
					Status:        StatusFailed,
					At:            time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
				}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMeta([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMeta_Malformed(t *testing.T) {
	_, err := DecodeMeta([]byte(`{"order_id":`))
	assert.Error(t, err)
}

func TestEncodeMeta(t *testing.T) {
	got := string(EncodeMeta(Meta{OrderID: "o-1", Method: "ZPAY", Gateway: SimulatedGatewayName}))
	assert.Equal(t, `{"order_id":"o-1","method":"ZPAY","gateway":"Z-PAY-DUMMY"}`, got)

	withAttempts := string(EncodeMeta(Meta{
		OrderID:  "o-1",
		Attempts: []Attempt{{TransactionID: "ZPAY-x", Status: StatusFailed, At: time.Unix(0, 0)}},
	}))
	assert.True(t, strings.Contains(withAttempts, `"attempts":[{"transaction_id":"ZPAY-x","status":"FAILED","at":"1970-01-01T00:00:00Z"}]`), withAttempts)
}
