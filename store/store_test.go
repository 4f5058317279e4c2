package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/crm/policies"
	"github.com/zeu5/crm/types"
	"golang.org/x/exp/rand"
)

func trainedTable() *policies.QTable {
	q := policies.NewQTable(3, 0.1, 0.9, rand.New(rand.NewSource(3)))
	q.Set(types.State{Key: "0:0:0:0", U: 0}, 1, 0.5)
	q.Set(types.State{Key: "0:1:0:0", U: 2}, 2, -0.25)
	q.Row(types.State{Key: "a|b", U: 1})
	return q
}

func assertTableStore(t *testing.T, s TableStore) {
	ctx := context.Background()
	q := trainedTable()
	require.NoError(t, Save(ctx, s, "crm", q))

	restored := policies.NewQTable(3, 0.1, 0.9, rand.New(rand.NewSource(4)))
	require.NoError(t, Load(ctx, s, "crm", restored))
	assert.Equal(t, q.Snapshot(), restored.Snapshot())
	assert.Equal(t, 0.5, restored.Get(types.State{Key: "0:0:0:0", U: 0}, 1))
	assert.True(t, restored.HasState(types.State{Key: "a|b", U: 1}))

	// saving again replaces the table
	small := policies.NewQTable(3, 0.1, 0.9, rand.New(rand.NewSource(5)))
	small.Set(types.State{Key: "x"}, 0, 1)
	require.NoError(t, Save(ctx, s, "crm", small))
	table, err := s.LoadTable(ctx, "crm")
	require.NoError(t, err)
	assert.Len(t, table, 1)

	_, err = s.LoadTable(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	wrong := policies.NewQTable(2, 0.1, 0.9, rand.New(rand.NewSource(5)))
	assert.Error(t, Load(ctx, s, "crm", wrong))
}

func TestFileTableStore(t *testing.T) {
	assertTableStore(t, NewFileTableStore(filepath.Join(t.TempDir(), "tables")))
}

func TestRedisTableStore(t *testing.T) {
	addr := os.Getenv("CRM_REDIS_ADDR")
	if addr == "" {
		t.Skip("CRM_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	s := NewRedisTableStore(client, "crm:test:"+t.Name()+":")
	t.Cleanup(func() {
		client.Del(context.Background(), "crm:test:"+t.Name()+":crm")
		_ = s.Close()
	})
	assertTableStore(t, s)
}

func sampleRecord(id string, index int) types.RunRecord {
	return types.RunRecord{
		ID:         id,
		Experiment: "crm",
		Index:      index,
		Run: &types.Run{
			Errors:    []float64{1.5, 0.75, 0.25},
			Rewards:   []float64{0, 0.5, 1},
			Steps:     []int{40, 22, 14},
			TestSteps: 14,
		},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveRun(ctx, sampleRecord("a", 0)))
	require.NoError(t, s.SaveRun(ctx, sampleRecord("b", 1)))
	updated := sampleRecord("a", 0)
	updated.Run.TestSteps = 20
	require.NoError(t, s.SaveRun(ctx, updated))

	records := s.Records("crm")
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, 20, records[0].Run.TestSteps)
	assert.Empty(t, s.Records("q"))

	_, ok, err := s.GetRun(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))

	_, _, err := s.GetRun(ctx, "a")
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, s.Init(ctx))
	t.Cleanup(func() {
		_ = s.Close()
	})

	record := sampleRecord("a", 1)
	require.NoError(t, s.SaveRun(ctx, record))
	require.NoError(t, s.SaveRun(ctx, sampleRecord("b", 0)))

	loaded, ok, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record, loaded)

	// saving the same id overwrites the episodes
	record.Run = &types.Run{Errors: []float64{2}, Rewards: []float64{1}, Steps: []int{3}, TestSteps: 3}
	require.NoError(t, s.SaveRun(ctx, record))
	loaded, ok, err = s.GetRun(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.Run, loaded.Run)

	ids, err := s.RunIDs(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)

	_, ok, err = s.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewResultStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewResultStore(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, CloseIfSupported(s))

	s, err = NewResultStore(ctx, "sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, CloseIfSupported(s))

	_, err = NewResultStore(ctx, "postgres", "")
	assert.Error(t, err)
}
