// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/store"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	StoreBackend  string
	SessionTTL    time.Duration
	SweepSchedule string
	CORSOrigins   []string
	Experiment    ExperimentConfig
}

// ExperimentConfig holds the experiment parameters. It can be read from a
// YAML file named by EXPERIMENT_CONFIG.
type ExperimentConfig struct {
	RoundBudgets   []float64           `yaml:"round_budgets"`
	CandidateCount int                 `yaml:"candidate_count"`
	CheckAllowance int                 `yaml:"check_allowance"`
	BudgetPolicy   domain.BudgetPolicy `yaml:"budget_policy"`
	Buyers         int                 `yaml:"buyers"`
}

// Load reads configuration from environment variables and the optional
// experiment file.
func Load() (*Config, error) {
	ttl, err := getEnvDuration("SESSION_TTL", 60*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/house-lab.db"),
		StoreBackend:  getEnv("STORE_BACKEND", store.BackendMemory),
		SessionTTL:    ttl,
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 5m"),
		CORSOrigins:   getEnvList("CORS_ORIGINS"),
		Experiment: ExperimentConfig{
			BudgetPolicy: domain.PolicyCeiling,
		},
	}

	if path := getEnv("EXPERIMENT_CONFIG", ""); path != "" {
		exp, err := LoadExperiment(path)
		if err != nil {
			return nil, err
		}
		cfg.Experiment = exp
	}

	if v, ok := os.LookupEnv("BUDGET_POLICY"); ok && v != "" {
		cfg.Experiment.BudgetPolicy = domain.BudgetPolicy(strings.ToLower(strings.TrimSpace(v)))
	}
	cfg.Experiment.CheckAllowance = getEnvInt("CHECK_ALLOWANCE", cfg.Experiment.CheckAllowance)
	cfg.Experiment.Buyers = getEnvInt("SIM_BUYERS", cfg.Experiment.Buyers)

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = cfg.defaultOrigins()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadExperiment reads experiment parameters from a YAML file. Missing keys
// keep their zero value and fall back to the engine defaults.
func LoadExperiment(path string) (ExperimentConfig, error) {
	var exp ExperimentConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return exp, fmt.Errorf("read experiment config: %w", err)
	}
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return exp, fmt.Errorf("parse experiment config: %w", err)
	}
	if exp.BudgetPolicy == "" {
		exp.BudgetPolicy = domain.PolicyCeiling
	}
	return exp, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case store.BackendMemory:
	case store.BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", store.BackendMemory, store.BackendSQLite, c.StoreBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepSchedule == "" {
		return fmt.Errorf("SWEEP_SCHEDULE cannot be empty")
	}
	return c.Experiment.Validate()
}

// Validate rejects inconsistent experiment parameters.
func (e ExperimentConfig) Validate() error {
	if !e.BudgetPolicy.Valid() {
		return fmt.Errorf("budget_policy must be %q or %q, got %q", domain.PolicyCeiling, domain.PolicyWallet, e.BudgetPolicy)
	}
	for i, b := range e.RoundBudgets {
		if b <= 0 {
			return fmt.Errorf("round_budgets[%d] must be > 0", i)
		}
	}
	if e.CandidateCount < 0 {
		return fmt.Errorf("candidate_count must be >= 0")
	}
	if e.CheckAllowance < 0 {
		return fmt.Errorf("check_allowance must be >= 0")
	}
	if e.Buyers < 0 {
		return fmt.Errorf("buyers must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func (c *Config) defaultOrigins() []string {
	if c.FrontendURL != "" {
		return []string{c.FrontendURL}
	}
	return []string{"http://localhost:5173", "http://localhost:3000"}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
