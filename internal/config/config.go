package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/aonescu/kubedit/internal/kubernetes"
)

const (
	defaultAPIAddress   = ":8080"
	defaultPollInterval = 30 * time.Second
	defaultHistoryLimit = 200
)

type Config struct {
	Kubeconfig string
	APIAddress string
	// DatabaseURL selects PostgreSQL for the sync history; empty keeps it in memory.
	DatabaseURL  string
	PollInterval time.Duration
	// Namespace places resources of namespaced kinds that name none. Empty selects the
	// namespace of the current kubeconfig context.
	Namespace string
	// Dir is where `open` writes documents.
	Dir string
	// HistoryLimit bounds the in-memory history per document.
	HistoryLimit int
}

// FromEnv returns the defaults overridden by the environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Kubeconfig:   kubernetes.DefaultKubeconfig(),
		APIAddress:   defaultAPIAddress,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PollInterval: defaultPollInterval,
		Dir:          ".",
		HistoryLimit: defaultHistoryLimit,
	}

	if addr := os.Getenv("API_ADDRESS"); addr != "" {
		cfg.APIAddress = addr
	}
	if interval := os.Getenv("KUBEDIT_POLL_INTERVAL"); interval != "" {
		d, err := parseInterval(interval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid KUBEDIT_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	return cfg, nil
}

// parseInterval accepts a duration or a plain number of seconds.
func parseInterval(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// BindFlags registers flags that override the current values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Kubeconfig, "kubeconfig", c.Kubeconfig, "Path to the kubeconfig file")
	fs.StringVar(&c.APIAddress, "api-address", c.APIAddress, "Address of the REST API, empty to disable it")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL connection string for the sync history")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Interval between periodic reconciliations, 0 to disable")
	fs.StringVarP(&c.Namespace, "namespace", "n", c.Namespace, "Namespace for resources that name none (default: the kubeconfig context namespace)")
	fs.StringVar(&c.Dir, "dir", c.Dir, "Directory that opened resources are written to")
	fs.IntVar(&c.HistoryLimit, "history-limit", c.HistoryLimit, "Sync events kept in memory per document")
}

func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", c.PollInterval)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative, got %d", c.HistoryLimit)
	}
	return nil
}
