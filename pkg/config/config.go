// Package config provides the pexec configuration data.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/pexec/pexec/pkg/process"
)

// Config provides the pexec configuration data.
type Config struct {
	// DataDir is where the state file and logs go by default.
	DataDir string `json:"data_dir"`

	// State file that persists the run history.
	State string `json:"state"`
	// InMemory keeps the run history in memory only.
	InMemory bool `json:"in_memory"`
	// HistoryTable is the table name of the run history.
	HistoryTable string `json:"history_table"`

	// Amount of time to retain run history for.
	// Zero keeps the history forever.
	RetentionPeriod metav1.Duration `json:"retention_period"`

	// Defaults applied to every process unless overridden.
	DefaultTimeout  metav1.Duration `json:"default_timeout"`
	KillGracePeriod metav1.Duration `json:"kill_grace_period"`
	PollInterval    metav1.Duration `json:"poll_interval"`
	SelectTimeout   metav1.Duration `json:"select_timeout"`
	MaxOutputBytes  int             `json:"max_output_bytes"`

	// QPS limits how many runs start per second; zero disables it.
	QPS int `json:"qps"`
	// MinimumRetryInterval rejects the same command line started again too soon.
	MinimumRetryInterval metav1.Duration `json:"minimum_retry_interval"`

	// MetricsFile, if set, receives the metrics in the Prometheus text format
	// when a command finishes.
	MetricsFile string `json:"metrics_file"`
}

var (
	ErrInvalidPollInterval = errors.New("poll_interval must be positive and no longer than select_timeout")
	ErrNoState             = errors.New("state file is required unless in_memory is set")
)

func (config *Config) Validate() error {
	if config.State == "" && !config.InMemory {
		return ErrNoState
	}
	if config.DefaultTimeout.Duration < 0 {
		return fmt.Errorf("default_timeout must not be negative, got %v", config.DefaultTimeout.Duration)
	}
	if config.KillGracePeriod.Duration <= 0 {
		return fmt.Errorf("kill_grace_period must be positive, got %v", config.KillGracePeriod.Duration)
	}
	if config.SelectTimeout.Duration <= 0 {
		return fmt.Errorf("select_timeout must be positive, got %v", config.SelectTimeout.Duration)
	}
	if config.PollInterval.Duration <= 0 || config.PollInterval.Duration > config.SelectTimeout.Duration {
		return ErrInvalidPollInterval
	}
	if config.MaxOutputBytes < 0 {
		return fmt.Errorf("max_output_bytes must not be negative, got %d", config.MaxOutputBytes)
	}
	if config.QPS < 0 {
		return fmt.Errorf("qps must not be negative, got %d", config.QPS)
	}
	if config.RetentionPeriod.Duration != 0 && config.RetentionPeriod.Duration < time.Minute {
		return fmt.Errorf("retention_period must be at least 1 minute, got %v", config.RetentionPeriod.Duration)
	}
	return nil
}

// LoadFile reads the YAML (or JSON) config file over the defaults.
func (config *Config) LoadFile(file string) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, config); err != nil {
		return fmt.Errorf("failed to parse config %q: %w", file, err)
	}
	return nil
}

// ProcessOptions returns the engine defaults as process options.
// Options passed after them override them.
func (config *Config) ProcessOptions() []process.OpOption {
	opts := []process.OpOption{
		process.WithKillGracePeriod(config.KillGracePeriod.Duration),
		process.WithPollInterval(config.PollInterval.Duration),
		process.WithSelectTimeout(config.SelectTimeout.Duration),
		process.WithMaxOutputBytes(config.MaxOutputBytes),
	}
	if config.DefaultTimeout.Duration > 0 {
		opts = append(opts, process.WithTimeout(config.DefaultTimeout.Duration))
	}
	return opts
}
