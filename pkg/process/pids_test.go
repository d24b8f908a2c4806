package process

import (
	"context"
	"errors"
	"testing"

	procs "github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProcessStatus struct {
	status []string
	err    error
}

func (m *mockProcessStatus) Status() ([]string, error) {
	return m.status, m.err
}

func TestZombieChildren(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		children map[int32]ProcessStatus
		listErr  error
		want     []int32
		wantErr  bool
	}{
		{
			name: "no children",
		},
		{
			name: "no zombies",
			children: map[int32]ProcessStatus{
				10: &mockProcessStatus{status: []string{procs.Running}},
				11: &mockProcessStatus{status: []string{procs.Sleep}},
			},
		},
		{
			name: "zombies sorted",
			children: map[int32]ProcessStatus{
				30: &mockProcessStatus{status: []string{procs.Zombie}},
				10: &mockProcessStatus{status: []string{procs.Zombie}},
				20: &mockProcessStatus{status: []string{procs.Sleep}},
			},
			want: []int32{10, 30},
		},
		{
			name: "children gone or failing are skipped",
			children: map[int32]ProcessStatus{
				1: &mockProcessStatus{err: errors.New("open /proc/1/status: no such file or directory")},
				2: &mockProcessStatus{err: errors.New("process not found")},
				3: &mockProcessStatus{err: errors.New("permission denied")},
				4: nil,
				5: &mockProcessStatus{status: []string{procs.Zombie}},
			},
			want: []int32{5},
		},
		{
			name:    "list error",
			listErr: errors.New("boom"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := zombieChildren(ctx, func(context.Context) (map[int32]ProcessStatus, error) {
				return tt.children, tt.listErr
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
