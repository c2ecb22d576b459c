package shipment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type takenTracking struct {
	Repository
	taken map[string]bool
}

func (r takenTracking) TrackingExists(_ context.Context, tracking string) (bool, error) {
	return r.taken[tracking], nil
}

func TestUniqueTracking(t *testing.T) {
	seq := []string{"ZN1", "ZN2", "ZN3"}
	w := &Workflow{
		repo: takenTracking{taken: map[string]bool{"ZN1": true, "ZN2": true}},
		newTracking: func() string {
			next := seq[0]
			seq = seq[1:]
			return next
		},
	}
	got, err := w.uniqueTracking(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ZN3", got)
}

func TestUniqueTracking_GivesUp(t *testing.T) {
	w := &Workflow{
		repo:        takenTracking{taken: map[string]bool{"ZNX": true}},
		newTracking: func() string { return "ZNX" },
	}
	_, err := w.uniqueTracking(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateTracking)
}
