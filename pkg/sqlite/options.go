package sqlite

type Op struct {
	readOnly bool
	// cache mode for in-memory databases (e.g., "shared")
	cache string
}

type OpOption func(*Op)

func (op *Op) applyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}
	return nil
}

// ref. https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func WithReadOnly(b bool) OpOption {
	return func(op *Op) {
		op.readOnly = b
	}
}

// WithCache sets the SQLite cache mode.
// Use "shared" so that every connection of the pool sees the same
// in-memory database.
// ref. https://github.com/mattn/go-sqlite3?tab=readme-ov-file#faq
func WithCache(mode string) OpOption {
	return func(op *Op) {
		op.cache = mode
	}
}
