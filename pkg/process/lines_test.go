package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	res := &Result{
		Stdout: []byte("a\nb\nc"),
		Stderr: []byte("err1\nerr2\n"),
	}

	tests := []struct {
		name    string
		opts    []ReadOpOption
		want    []string
		wantErr bool
	}{
		{name: "nothing selected", wantErr: true},
		{name: "stdout", opts: []ReadOpOption{WithReadStdout()}, want: []string{"a", "b", "c"}},
		{name: "stderr", opts: []ReadOpOption{WithReadStderr()}, want: []string{"err1", "err2"}},
		{
			name: "both in order",
			opts: []ReadOpOption{WithReadStderr(), WithReadStdout()},
			want: []string{"a", "b", "c", "err1", "err2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lines []string
			opts := append(tt.opts, WithProcessLine(func(line string) {
				lines = append(lines, line)
			}))
			err := ReadLines(res, opts...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lines)
		})
	}
}

func TestReadLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	res := &Result{Stdout: []byte(long + "\nshort\n")}

	var lines []string
	require.NoError(t, ReadLines(res, WithReadStdout(), WithProcessLine(func(line string) {
		lines = append(lines, line)
	})))
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 200*1024)
}

func TestReadLinesNilResult(t *testing.T) {
	require.Error(t, ReadLines(nil, WithReadStdout()))
}
