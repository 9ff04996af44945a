package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "FRONTEND_URL", "DB_PATH", "STORE_BACKEND", "SESSION_TTL",
	"SWEEP_SCHEDULE", "EXPERIMENT_CONFIG", "BUDGET_POLICY", "CHECK_ALLOWANCE",
	"SIM_BUYERS", "CORS_ORIGINS",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, store.BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 60*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "@every 5m", cfg.SweepSchedule)
	assert.Equal(t, domain.PolicyCeiling, cfg.Experiment.BudgetPolicy)
	assert.Zero(t, cfg.Experiment.CheckAllowance)
	assert.NotEmpty(t, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("BUDGET_POLICY", "Wallet")
	t.Setenv("CHECK_ALLOWANCE", "2")
	t.Setenv("SIM_BUYERS", "12")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FRONTEND_URL", "https://lab.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, store.BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, domain.PolicyWallet, cfg.Experiment.BudgetPolicy)
	assert.Equal(t, 2, cfg.Experiment.CheckAllowance)
	assert.Equal(t, 12, cfg.Experiment.Buyers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_ExperimentFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
round_budgets: [120, 160]
candidate_count: 6
check_allowance: 1
buyers: 20
`), 0o600))
	t.Setenv("EXPERIMENT_CONFIG", path)
	t.Setenv("SIM_BUYERS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []float64{120, 160}, cfg.Experiment.RoundBudgets)
	assert.Equal(t, 6, cfg.Experiment.CandidateCount)
	assert.Equal(t, 1, cfg.Experiment.CheckAllowance)
	assert.Equal(t, domain.PolicyCeiling, cfg.Experiment.BudgetPolicy)
	assert.Equal(t, 3, cfg.Experiment.Buyers, "env wins over file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad backend", map[string]string{"STORE_BACKEND": "redis"}},
		{"bad ttl", map[string]string{"SESSION_TTL": "soon"}},
		{"bad policy", map[string]string{"BUDGET_POLICY": "credit"}},
		{"negative allowance", map[string]string{"CHECK_ALLOWANCE": "-1"}},
		{"missing file", map[string]string{"EXPERIMENT_CONFIG": "/nonexistent/exp.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestExperimentConfig_Validate(t *testing.T) {
	good := ExperimentConfig{BudgetPolicy: domain.PolicyWallet, RoundBudgets: []float64{100}}
	assert.NoError(t, good.Validate())

	bad := good
	bad.RoundBudgets = []float64{100, 0}
	assert.Error(t, bad.Validate())
}
