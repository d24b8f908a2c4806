package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSince(t *testing.T) {
	testTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	op := &Op{}

	WithSince(testTime)(op)

	assert.True(t, op.Since.Equal(testTime))
}

func TestWithNames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  map[string]struct{}
	}{
		{
			name:  "single name",
			names: []string{"pexec_process_runs_total"},
			want:  map[string]struct{}{"pexec_process_runs_total": {}},
		},
		{
			name:  "multiple names",
			names: []string{"a", "b"},
			want:  map[string]struct{}{"a": {}, "b": {}},
		},
		{
			name:  "empty name is ignored",
			names: []string{"a", ""},
			want:  map[string]struct{}{"a": {}},
		},
		{
			name:  "no names",
			names: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Op{}
			require.NoError(t, op.ApplyOpts([]OpOption{WithNames(tt.names...)}))
			assert.Equal(t, tt.want, op.SelectedNames)
		})
	}
}
