// Package manager implements a process run manager.
// It assigns every run an id, rate-limits starts, and records each run
// with its outcome into the history store.
package manager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tstime/rate"

	"github.com/pexec/pexec/pkg/errdefs"
	"github.com/pexec/pexec/pkg/log"
	"github.com/pexec/pexec/pkg/process"
	"github.com/pexec/pexec/pkg/process/state"
	state_sqlite "github.com/pexec/pexec/pkg/process/state/sqlite"
)

// DefaultOutputTailBytes is how much of a run's output is kept in the history.
const DefaultOutputTailBytes = 4096

type Config struct {
	SQLite *sql.DB
	// Optional read-only handle for history reads.
	SQLiteRO  *sql.DB
	TableName string

	// QPS is the maximum number of starts per second.
	// Zero disables rate limiting.
	QPS int

	// MinimumRetryInterval is the minimum time between two runs of the same command line.
	// If the same command line is requested to start within this interval, the request is rejected.
	MinimumRetryInterval time.Duration

	// Exclusive rejects a run while another one is running.
	Exclusive bool

	// OutputTailBytes is how many trailing bytes of output each history entry keeps.
	OutputTailBytes int
}

type Manager interface {
	// Run runs the process built from the options to completion and returns
	// the run id and its result. A non-zero exit or a timeout is reported in
	// the result, not as an error.
	Run(ctx context.Context, opts ...process.OpOption) (string, *process.Result, error)
	// MustRun is Run that also fails unless the process exited with zero status in time.
	MustRun(ctx context.Context, opts ...process.OpOption) (string, *process.Result, error)
	// RunAll runs the processes in one shared loop and returns the run ids
	// and results in the order of procs. A process that was rejected has an
	// empty id; one that failed to spawn has a nil result.
	RunAll(ctx context.Context, procs []*process.Process) ([]string, []*process.Result, error)

	// Get returns the recorded run with the given id.
	// Returns error state.ErrNotFound if the id does not exist.
	Get(ctx context.Context, id string) (*state.Row, error)
	// List returns up to limit recorded runs, most recent first.
	List(ctx context.Context, limit int) ([]state.Row, error)
	// Purge deletes the runs that started before the time.
	Purge(ctx context.Context, before time.Time) (int, error)
}

var _ Manager = &manager{}

type manager struct {
	cfg         Config
	state       state.Interface
	runner      process.Runner
	rateLimiter *rate.Limiter
}

func New(cfg Config) (Manager, error) {
	if cfg.SQLite == nil {
		return nil, errors.New("sqlite is not set")
	}
	if cfg.TableName == "" {
		cfg.TableName = state_sqlite.DefaultTableName
	}
	if cfg.OutputTailBytes <= 0 {
		cfg.OutputTailBytes = DefaultOutputTailBytes
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := state_sqlite.New(ctx, cfg.SQLite, cfg.SQLiteRO, cfg.TableName)
	cancel()
	if err != nil {
		return nil, err
	}

	mngr := &manager{
		cfg:    cfg,
		state:  st,
		runner: process.NewRunner(),
	}
	if cfg.Exclusive {
		mngr.runner = process.NewExclusiveRunner()
	}
	if cfg.QPS > 0 {
		mngr.rateLimiter = rate.NewLimiter(rate.Limit(cfg.QPS), cfg.QPS)
	}
	return mngr, nil
}

var (
	ErrQPSLimitExceeded     = fmt.Errorf("%w: qps limit exceeded", errdefs.ErrUnavailable)
	ErrMinimumRetryInterval = fmt.Errorf("%w: minimum retry interval not yet met -- try again later", errdefs.ErrUnavailable)
)

func (m *manager) Run(ctx context.Context, opts ...process.OpOption) (string, *process.Result, error) {
	id, _, res, err := m.run(ctx, opts)
	return id, res, err
}

func (m *manager) MustRun(ctx context.Context, opts ...process.OpOption) (string, *process.Result, error) {
	id, p, res, err := m.run(ctx, opts)
	if err != nil {
		return id, res, err
	}
	return id, res, p.Check(res)
}

func (m *manager) run(ctx context.Context, opts []process.OpOption) (string, *process.Process, *process.Result, error) {
	if !m.allow() {
		return "", nil, nil, ErrQPSLimitExceeded
	}

	p, err := process.New(opts...)
	if err != nil {
		return "", nil, nil, err
	}
	id, err := m.recordStart(ctx, p)
	if err != nil {
		return "", p, nil, err
	}

	res, err := m.runner.RunUntilCompletion(ctx, p)
	if err != nil {
		m.recordOutcome(ctx, id, state.Outcome{ExitCode: process.ExitCodeUnknown, Error: err.Error()})
		return id, p, nil, err
	}
	m.recordOutcome(ctx, id, m.outcome(res))
	return id, p, res, nil
}

func (m *manager) RunAll(ctx context.Context, procs []*process.Process) ([]string, []*process.Result, error) {
	ids := make([]string, len(procs))
	results := make([]*process.Result, len(procs))
	if !m.allow() {
		return ids, results, ErrQPSLimitExceeded
	}

	var errs []error
	accepted := make([]*process.Process, len(procs))
	for i, p := range procs {
		if p == nil {
			continue
		}
		id, err := m.recordStart(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("process %d (%s): %w", i, p.CommandLine(), err))
			continue
		}
		ids[i] = id
		accepted[i] = p
	}

	ran := process.RunAll(ctx, accepted)
	for i, p := range accepted {
		if p == nil {
			continue
		}
		results[i] = ran[i]
		if ran[i] == nil {
			msg := "failed to start"
			if serr := p.SpawnErr(); serr != nil {
				msg = serr.Error()
			}
			m.recordOutcome(ctx, ids[i], state.Outcome{ExitCode: process.ExitCodeUnknown, Error: msg})
			continue
		}
		m.recordOutcome(ctx, ids[i], m.outcome(ran[i]))
	}
	return ids, results, errors.Join(errs...)
}

func (m *manager) Get(ctx context.Context, id string) (*state.Row, error) {
	if !m.allow() {
		return nil, ErrQPSLimitExceeded
	}
	return m.state.Get(ctx, id)
}

func (m *manager) List(ctx context.Context, limit int) ([]state.Row, error) {
	return m.state.List(ctx, limit)
}

func (m *manager) Purge(ctx context.Context, before time.Time) (int, error) {
	return m.state.Purge(ctx, before)
}

func (m *manager) allow() bool {
	return m.rateLimiter == nil || m.rateLimiter.Allow()
}

// recordStart checks the retry interval of the command line
// and records the new run under a fresh id.
func (m *manager) recordStart(ctx context.Context, p *process.Process) (string, error) {
	commandLine := p.CommandLine()

	if m.cfg.MinimumRetryInterval > 0 {
		prev, err := m.state.LatestByCommand(ctx, commandLine)
		if err != nil && !state.IsNotFound(err) {
			return "", err
		}
		if prev != nil && time.Since(prev.StartedAt) < m.cfg.MinimumRetryInterval {
			return "", ErrMinimumRetryInterval
		}
		// same command has been run before, but enough interval has elapsed
		// so we can run it again
	}

	id := uuid.NewString()
	if err := m.state.RecordStart(ctx, id, commandLine, time.Now()); err != nil {
		return "", err
	}
	return id, nil
}

// recordOutcome writes the outcome even if ctx was canceled.
func (m *manager) recordOutcome(ctx context.Context, id string, outcome state.Outcome) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := m.state.RecordOutcome(cctx, id, outcome); err != nil {
		log.Logger.Errorw("failed to record run outcome", "id", id, "error", err)
	}
}

func (m *manager) outcome(res *process.Result) state.Outcome {
	return state.Outcome{
		StartedAt:   res.StartedAt,
		PID:         res.PID,
		ExitCode:    res.ExitCode,
		Signal:      res.Signal,
		TimedOut:    res.TimedOut,
		Canceled:    res.Canceled,
		Duration:    res.Duration,
		StdoutBytes: len(res.Stdout),
		StderrBytes: len(res.Stderr),
		Output:      outputTail(res.Stdout, res.Stderr, m.cfg.OutputTailBytes),
	}
}

// outputTail returns the last n bytes of stdout followed by stderr.
func outputTail(stdout, stderr []byte, n int) string {
	if len(stderr) >= n {
		return string(stderr[len(stderr)-n:])
	}
	need := n - len(stderr)
	if len(stdout) > need {
		stdout = stdout[len(stdout)-need:]
	}
	return string(stdout) + string(stderr)
}
