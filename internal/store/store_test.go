package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession(id string, updated time.Time) *domain.Session {
	return &domain.Session{
		ID:                 id,
		ParticipantID:      "anon_1",
		Seed:               42,
		Policy:             domain.PolicyCeiling,
		Round:              2,
		Phase:              domain.PhaseRoundActive,
		Budget:             150,
		Candidates:         []int{3, 1, 4, 10, 5, 9, 2, 6},
		Cursor:             2,
		Viewed:             domain.NewIDSet(3, 1),
		RevealedBenchmarks: domain.NewIDSet(3),
		Purchases: []domain.Purchase{
			{PropertyID: 1, Price: 90, Tier: domain.TierValue, Type: domain.TypeLocation, Round: 1},
		},
		Purchased: domain.NewIDSet(1),
		CreatedAt: updated.Truncate(time.Second),
		UpdatedAt: updated.Truncate(time.Second),
	}
}

func backends(t *testing.T) map[string]Repository {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "data", "lab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		BackendMemory: NewMemory(),
		BackendSQLite: sqlite,
	}
}

func TestRepository_SessionRoundTrip(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleSession("s-1", time.Now())

			require.NoError(t, repo.SaveSession(ctx, want))
			got, err := repo.GetSession(ctx, "s-1")
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, want.Candidates, got.Candidates)
			assert.Equal(t, want.Viewed, got.Viewed)
			assert.Equal(t, want.RevealedBenchmarks, got.RevealedBenchmarks)
			assert.Equal(t, want.Purchases, got.Purchases)
			assert.True(t, got.Purchased.Has(1))
			assert.Equal(t, want.Round, got.Round)
			assert.Equal(t, want.Budget, got.Budget)
			assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
		})
	}
}

func TestRepository_SaveReplaces(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := sampleSession("s-1", time.Now())
			require.NoError(t, repo.SaveSession(ctx, s))

			s.Round = 3
			s.Phase = domain.PhaseComplete
			require.NoError(t, repo.SaveSession(ctx, s))

			got, err := repo.GetSession(ctx, "s-1")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Round)
			assert.Equal(t, domain.PhaseComplete, got.Phase)
		})
	}
}

func TestRepository_MissingAndDelete(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := repo.GetSession(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, repo.SaveSession(ctx, sampleSession("s-1", time.Now())))
			require.NoError(t, repo.DeleteSession(ctx, "s-1"))
			require.NoError(t, repo.DeleteSession(ctx, "s-1"))

			got, err = repo.GetSession(ctx, "s-1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestRepository_ExpiredSessions(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.SaveSession(ctx, sampleSession("old", time.Now().Add(-2*time.Hour))))
			require.NoError(t, repo.SaveSession(ctx, sampleSession("fresh", time.Now())))

			ids, err := repo.ExpiredSessions(ctx, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, []string{"old"}, ids)
		})
	}
}

func TestRepository_SimulationRoundTrip(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := &domain.SimulationRun{
				ID:      "run-1",
				Seed:    42,
				Buyers:  5,
				Budgets: []float64{100, 150, 150},
				Records: []domain.SimulationRecord{
					{Round: 1, Buyer: 1, PropertyID: 1, Price: 90, Tier: domain.TierValue, Type: domain.TypeLocation},
				},
				NoPurchases: []domain.NoPurchase{{Round: 1, Buyer: 2, Budget: 100}},
				CreatedAt:   time.Now().Truncate(time.Second),
			}
			require.NoError(t, repo.SaveSimulation(ctx, run))

			got, err := repo.GetSimulation(ctx, "run-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, run.Records, got.Records)
			assert.Equal(t, run.NoPurchases, got.NoPurchases)
			assert.Equal(t, run.Budgets, got.Budgets)
			assert.Equal(t, int64(42), got.Seed)

			missing, err := repo.GetSimulation(ctx, "run-2")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestRepository_Ping(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, repo.Ping(context.Background()))
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	s := sampleSession("s-1", time.Now())
	require.NoError(t, repo.SaveSession(ctx, s))

	s.Viewed.Add(99)
	got, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, got.Viewed.Has(99))

	got.Purchased.Add(77)
	again, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, again.Purchased.Has(77))
}

func TestOpen(t *testing.T) {
	repo, err := Open(BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, repo)

	repo, err = Open(BackendSQLite, filepath.Join(t.TempDir(), "lab.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open("redis", "")
	assert.Error(t, err)
}
