package config

type Op struct {
	DataDir    string
	DBInMemory bool
}

type OpOption func(*Op)

func (op *Op) ApplyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}
	return nil
}

// WithDataDir overrides the default data directory for pexec artifacts.
func WithDataDir(dataDir string) OpOption {
	return func(op *Op) {
		op.DataDir = dataDir
	}
}

// WithDBInMemory keeps the run history in memory, never on disk.
func WithDBInMemory(b bool) OpOption {
	return func(op *Op) {
		op.DBInMemory = b
	}
}
