package metrics

import "time"

type Op struct {
	Since         time.Time
	SelectedNames map[string]struct{}
}

type OpOption func(*Op)

func (op *Op) ApplyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	return nil
}

func WithSince(t time.Time) OpOption {
	return func(op *Op) {
		op.Since = t
	}
}

// WithNames sets the metric names to read.
// If no name is provided, all metrics are read.
func WithNames(names ...string) OpOption {
	return func(op *Op) {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}

			if op.SelectedNames == nil {
				op.SelectedNames = make(map[string]struct{})
			}
			op.SelectedNames[name] = struct{}{}
		}
	}
}
