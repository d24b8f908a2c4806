package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pexec/pexec/pkg/errdefs"
)

func TestRunnerConcurrent(t *testing.T) {
	r := NewRunner()

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range results {
		p, err := New(WithCommand("sh", "-c", "sleep 0.2; echo ok"))
		require.NoError(t, err)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.RunUntilCompletion(context.Background(), p)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "ok\n", string(res.Stdout))
	}
}

func TestExclusiveRunner(t *testing.T) {
	r := NewExclusiveRunner()

	started := make(chan struct{})
	slow, err := New(
		WithCommand("sleep", "1"),
		WithAfterStart(func(int) { close(started) }),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunUntilCompletion(context.Background(), slow)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not start")
	}

	other, err := New(WithCommand("true"))
	require.NoError(t, err)
	_, err = r.RunUntilCompletion(context.Background(), other)
	require.ErrorIs(t, err, ErrProcessAlreadyRunning)
	assert.True(t, errdefs.IsUnavailable(err))

	require.NoError(t, <-done)

	// free again once the first one finished
	res, err := r.RunUntilCompletion(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExclusiveRunnerStartError(t *testing.T) {
	r := NewExclusiveRunner()

	bad, err := New(WithCommand("/nonexistent/pexec-test-binary"))
	require.NoError(t, err)
	_, err = r.RunUntilCompletion(context.Background(), bad)
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)

	ok, err := New(WithCommand("true"))
	require.NoError(t, err)
	_, err = r.RunUntilCompletion(context.Background(), ok)
	require.NoError(t, err)
}
