package scheduler

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	JobEnrollmentGrants  = "enrollment_grants"
	JobReconcilePayments = "reconcile_payments"
)

// Config controls job specs and batch sizes. Specs use the robfig/cron
// syntax, including descriptors such as "@every 1m".
type Config struct {
	GrantsSpec    string
	ReconcileSpec string
	BatchSize     int
	JobTimeout    time.Duration
	LockTTL       time.Duration
	// EnabledJobs is empty when every job runs in this process.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		GrantsSpec:    "@every 1m",
		ReconcileSpec: "@every 1m",
		BatchSize:     50,
		JobTimeout:    30 * time.Second,
		LockTTL:       2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.GrantsSpec) == "" {
		c.GrantsSpec = defaults.GrantsSpec
	}
	if strings.TrimSpace(c.ReconcileSpec) == "" {
		c.ReconcileSpec = defaults.ReconcileSpec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// Validate parses both specs so a typo fails the boot instead of silently
// disabling a job.
func (c Config) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, spec := range []string{c.GrantsSpec, c.ReconcileSpec} {
		if _, err := parser.Parse(spec); err != nil {
			return err
		}
	}
	return nil
}

// ProvideConfig reads SCHEDULER_* environment variables over the defaults.
func ProvideConfig() (Config, error) {
	cfg := Config{
		GrantsSpec:    os.Getenv("SCHEDULER_GRANTS_SPEC"),
		ReconcileSpec: os.Getenv("SCHEDULER_RECONCILE_SPEC"),
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_BATCH_SIZE")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.BatchSize = n
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_JOB_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.JobTimeout = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); raw != "" {
		for _, job := range strings.Split(raw, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
