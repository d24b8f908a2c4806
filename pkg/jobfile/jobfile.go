// Package jobfile parses batch files: YAML lists of processes
// to run together in one shared loop.
//
//	defaults:
//	  timeout: 30s
//	jobs:
//	  - name: unit-tests
//	    command: ["go", "test", "./..."]
//	    dir: /src
//	    env: ["GOFLAGS=-count=1"]
//	  - command: ["wc", "-l"]
//	    input_file: /var/log/syslog
//	    clear_env: true
//
// A job's env is merged over the environment pexec runs with,
// unless clear_env is set.
package jobfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/pexec/pexec/pkg/errdefs"
	"github.com/pexec/pexec/pkg/process"
)

// File is a parsed batch file.
type File struct {
	Defaults Job   `json:"defaults"`
	Jobs     []Job `json:"jobs"`
}

// Job describes one process of the batch.
type Job struct {
	// Name is for display only; defaults to the command line.
	Name    string   `json:"name,omitempty"`
	Command []string `json:"command,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	Env     []string `json:"env,omitempty"`
	// ClearEnv drops the inherited environment; only env is passed.
	ClearEnv *bool `json:"clear_env,omitempty"`

	// Input is written to the process's stdin.
	Input *string `json:"input,omitempty"`
	// InputFile is streamed to the process's stdin.
	// A relative path is relative to the batch file.
	InputFile string `json:"input_file,omitempty"`

	Timeout         *metav1.Duration `json:"timeout,omitempty"`
	KillGracePeriod *metav1.Duration `json:"kill_grace_period,omitempty"`
	MaxOutputBytes  *int             `json:"max_output_bytes,omitempty"`
}

// Load reads and validates the batch file.
func Load(file string) (*File, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	// input files are relative to the batch file
	dir := filepath.Dir(file)
	for i := range f.Jobs {
		if p := f.Jobs[i].InputFile; p != "" && p != "-" && !filepath.IsAbs(p) {
			f.Jobs[i].InputFile = filepath.Join(dir, p)
		}
	}
	return f, nil
}

// Parse parses and validates the batch file contents.
func Parse(b []byte) (*File, error) {
	f := &File{}
	if err := yaml.UnmarshalStrict(b, f); err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Validate() error {
	if len(f.Defaults.Command) > 0 || f.Defaults.Input != nil || f.Defaults.InputFile != "" {
		return fmt.Errorf("%w: defaults may only set dir, env, clear_env, timeout, kill_grace_period, and max_output_bytes", errdefs.ErrInvalidArgument)
	}
	if len(f.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs", errdefs.ErrInvalidArgument)
	}
	names := make(map[string]int)
	for i, j := range f.Jobs {
		if j.Name != "" {
			if prev, ok := names[j.Name]; ok {
				return fmt.Errorf("%w: job %d: name %q is taken by job %d", errdefs.ErrAlreadyExists, i, j.Name, prev)
			}
			names[j.Name] = i
		}
		if len(j.Command) == 0 || j.Command[0] == "" {
			return fmt.Errorf("%w: job %d: no command", errdefs.ErrInvalidArgument, i)
		}
		if j.Input != nil && j.InputFile != "" {
			return fmt.Errorf("%w: job %d: input and input_file are mutually exclusive", errdefs.ErrInvalidArgument, i)
		}
	}
	return nil
}

// Batch is the processes built from a batch file.
// Close it once the processes ran to release their input files.
type Batch struct {
	Names     []string
	Processes []*process.Process

	closers []io.Closer
}

func (b *Batch) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Build creates one process per job. The base options apply to every
// process first, then the defaults of the file, then the job's own fields.
// stdin is used for an input_file of "-".
func (f *File) Build(stdin io.Reader, base ...process.OpOption) (*Batch, error) {
	b := &Batch{}
	for i, j := range f.Jobs {
		opts := append([]process.OpOption{}, base...)
		opts = append(opts, f.Defaults.options()...)
		opts = append(opts, j.options()...)
		envs := process.MergeEnvs(f.Defaults.Env, j.Env)
		switch {
		case j.clearEnv(f.Defaults):
			opts = append(opts, process.WithClearEnv(), process.WithEnvs(envs...))
		case len(envs) > 0:
			opts = append(opts, process.WithEnvs(process.MergeEnvs(os.Environ(), envs)...))
		}

		switch {
		case j.Input != nil:
			opts = append(opts, process.WithInput([]byte(*j.Input)))
		case j.InputFile == "-":
			opts = append(opts, process.WithInputReader(stdin))
		case j.InputFile != "":
			in, err := os.Open(j.InputFile)
			if err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("job %d: %w", i, err)
			}
			b.closers = append(b.closers, in)
			opts = append(opts, process.WithInputReader(in))
		}

		p, err := process.New(opts...)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("job %d: %w", i, err)
		}

		name := j.Name
		if name == "" {
			name = p.CommandLine()
		}
		b.Names = append(b.Names, name)
		b.Processes = append(b.Processes, p)
	}
	return b, nil
}

// clearEnv returns the job's clear_env, falling back to the defaults.
func (j Job) clearEnv(defaults Job) bool {
	if j.ClearEnv != nil {
		return *j.ClearEnv
	}
	return defaults.ClearEnv != nil && *defaults.ClearEnv
}

// options returns the options the job sets, except for env.
func (j Job) options() []process.OpOption {
	var opts []process.OpOption
	if len(j.Command) > 0 {
		opts = append(opts, process.WithCommand(j.Command...))
	}
	if j.Dir != "" {
		opts = append(opts, process.WithDir(j.Dir))
	}
	if j.Timeout != nil {
		opts = append(opts, process.WithTimeout(j.Timeout.Duration))
	}
	if j.KillGracePeriod != nil {
		opts = append(opts, process.WithKillGracePeriod(j.KillGracePeriod.Duration))
	}
	if j.MaxOutputBytes != nil {
		opts = append(opts, process.WithMaxOutputBytes(*j.MaxOutputBytes))
	}
	return opts
}
