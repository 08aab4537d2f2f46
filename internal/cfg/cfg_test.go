package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		SweepSeconds:          10,
		PoolStalenessSeconds:  60,
		PoolMonitorSeconds:    15,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.SweepSeconds != 10 {
		t.Errorf("SweepSeconds = %d, want 10", c.SweepSeconds)
	}
	if c.PoolStalenessSeconds != 60 {
		t.Errorf("PoolStalenessSeconds = %d, want 60", c.PoolStalenessSeconds)
	}
	if c.DatabaseURL != "" || c.APIToken != "" || c.AutomationsFile != "" {
		t.Error("string fields should default empty")
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-database-url", "postgres://localhost/prefect",
		"-api-token", "tok-123",
		"-automations-file", "/etc/prefect/automations.yaml",
		"-pool-staleness-seconds", "45",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.DatabaseURL != "postgres://localhost/prefect" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.APIToken != "tok-123" {
		t.Errorf("APIToken = %q", c.APIToken)
	}
	if c.AutomationsFile != "/etc/prefect/automations.yaml" {
		t.Errorf("AutomationsFile = %q", c.AutomationsFile)
	}
	if c.PoolStalenessSeconds != 45 {
		t.Errorf("PoolStalenessSeconds = %d, want 45", c.PoolStalenessSeconds)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errSubstr []string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "minimum valid values",
			mutate: func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 1, 2, 1
				c.SweepSeconds, c.PoolStalenessSeconds, c.PoolMonitorSeconds = 1, 1, 1
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			mutate: func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 299, 300, 65535
				c.SweepSeconds, c.PoolStalenessSeconds, c.PoolMonitorSeconds = 3600, 3600, 3600
			},
			wantErr: false,
		},
		{
			name:      "drain zero",
			mutate:    func(c *Config) { c.DrainSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			mutate:    func(c *Config) { c.DrainSeconds = -1 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			mutate:    func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget zero",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = 301 },
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds },
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			mutate:    func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 60, 30 },
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port zero",
			mutate:    func(c *Config) { c.APIPort = 0 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			mutate:    func(c *Config) { c.APIPort = 65536 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "sweep zero",
			mutate:    func(c *Config) { c.SweepSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"SWEEP_SECONDS"},
		},
		{
			name:      "staleness above max",
			mutate:    func(c *Config) { c.PoolStalenessSeconds = 3601 },
			wantErr:   true,
			errSubstr: []string{"POOL_STALENESS_SECONDS"},
		},
		{
			name:      "monitor slower than staleness",
			mutate:    func(c *Config) { c.PoolMonitorSeconds, c.PoolStalenessSeconds = 120, 60 },
			wantErr:   true,
			errSubstr: []string{"POOL_MONITOR_SECONDS", "must not exceed"},
		},
		{
			name: "all fields invalid",
			mutate: func(c *Config) {
				*c = Config{}
			},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT",
				"SWEEP_SECONDS", "POOL_STALENESS_SECONDS", "POOL_MONITOR_SECONDS",
			},
		},
		{
			name: "extreme negative values",
			mutate: func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = math.MinInt32, math.MinInt32, math.MinInt32
			},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	seeds := []struct {
		drain, budget, port, sweep, stale, monitor int
	}{
		{60, 90, 8080, 10, 60, 15},
		{1, 2, 1, 1, 1, 1},
		{299, 300, 65535, 3600, 3600, 3600},
		{0, 0, 0, 0, 0, 0},
		{-1, -1, -1, -1, -1, -1},
		{150, 100, 8080, 10, 60, 15},
		{60, 90, 8080, 10, 60, 120},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.sweep, s.stale, s.monitor)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, sweep, stale, monitor int) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			SweepSeconds:          sweep,
			PoolStalenessSeconds:  stale,
			PoolMonitorSeconds:    monitor,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		sweepOK := sweep >= 1 && sweep <= 3600
		staleOK := stale >= 1 && stale <= 3600
		monitorOK := monitor >= 1 && monitor <= 3600
		monitorCrossOK := monitor <= 0 || stale <= 0 || monitor <= stale

		allValid := drainOK && budgetOK && portOK && crossOK && sweepOK && staleOK && monitorOK && monitorCrossOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
