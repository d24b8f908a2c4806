package config

import (
	"context"
	stdos "os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pexec/pexec/pkg/process"
	state_sqlite "github.com/pexec/pexec/pkg/process/state/sqlite"
)

var (
	DefaultKillGracePeriod = metav1.Duration{Duration: process.DefaultKillGracePeriod}
	DefaultPollInterval    = metav1.Duration{Duration: process.DefaultPollInterval}
	DefaultSelectTimeout   = metav1.Duration{Duration: process.DefaultSelectTimeout}

	// keep a week of run history
	DefaultRetentionPeriod = metav1.Duration{Duration: 7 * 24 * time.Hour}
)

func DefaultConfig(ctx context.Context, opts ...OpOption) (*Config, error) {
	options := &Op{}
	if err := options.ApplyOpts(opts); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         options.DataDir,
		InMemory:        options.DBInMemory,
		HistoryTable:    state_sqlite.DefaultTableName,
		RetentionPeriod: DefaultRetentionPeriod,
		KillGracePeriod: DefaultKillGracePeriod,
		PollInterval:    DefaultPollInterval,
		SelectTimeout:   DefaultSelectTimeout,
	}

	if cfg.DataDir == "" {
		var err error
		cfg.DataDir, err = setupDefaultDir()
		if err != nil {
			return nil, err
		}
	} else if err := stdos.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	if !cfg.InMemory {
		cfg.State = StateFile(cfg.DataDir)
	}

	return cfg, nil
}

const defaultVarLib = "/var/lib/pexec"

func setupDefaultDir() (string, error) {
	asRoot := stdos.Geteuid() == 0 // running as root

	d := defaultVarLib
	_, err := stdos.Stat("/var/lib")
	if !asRoot || stdos.IsNotExist(err) {
		homeDir, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		d = filepath.Join(homeDir, ".pexec")
	}

	if _, err := stdos.Stat(d); stdos.IsNotExist(err) {
		if err = stdos.MkdirAll(d, 0755); err != nil {
			return "", err
		}
	}
	return d, nil
}

// StateFile returns the run history file under the data dir.
func StateFile(dataDir string) string {
	return filepath.Join(dataDir, "pexec.state")
}

// LogFile returns the default log file under the data dir.
func LogFile(dataDir string) string {
	return filepath.Join(dataDir, "pexec.log")
}
