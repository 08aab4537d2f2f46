package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds server configuration, bound to flags and filled from the
// environment by the common cfg helpers.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SlackWebhookURL       string
	APIToken              string
	AutomationsFile       string
	SweepSeconds          int
	PoolStalenessSeconds  int
	PoolMonitorSeconds    int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")
	fs.StringVar(&c.AutomationsFile, "automations-file", "", "YAML file with automation triggers to load at startup")
	fs.IntVar(&c.SweepSeconds, "sweep-seconds", 10, "interval between proactive trigger sweeps (1..3600)")
	fs.IntVar(&c.PoolStalenessSeconds, "pool-staleness-seconds", 60, "seconds without a heartbeat before a work pool goes not_ready (1..3600)")
	fs.IntVar(&c.PoolMonitorSeconds, "pool-monitor-seconds", 15, "interval between work pool staleness checks (1..3600)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SweepSeconds <= 0 || c.SweepSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid SWEEP_SECONDS %d (must be 1..3600)", c.SweepSeconds))
	}
	if c.PoolStalenessSeconds <= 0 || c.PoolStalenessSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid POOL_STALENESS_SECONDS %d (must be 1..3600)", c.PoolStalenessSeconds))
	}
	if c.PoolMonitorSeconds <= 0 || c.PoolMonitorSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid POOL_MONITOR_SECONDS %d (must be 1..3600)", c.PoolMonitorSeconds))
	}

	// The monitor has to run at least as often as pools can go stale.
	if c.PoolMonitorSeconds > 0 && c.PoolStalenessSeconds > 0 && c.PoolMonitorSeconds > c.PoolStalenessSeconds {
		errs = append(errs, fmt.Errorf("POOL_MONITOR_SECONDS %d must not exceed POOL_STALENESS_SECONDS %d", c.PoolMonitorSeconds, c.PoolStalenessSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
