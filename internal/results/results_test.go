package results_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/report"
	"codeberg.org/mutker/sigjitter/internal/results"
	"codeberg.org/mutker/sigjitter/internal/sampler"
	"codeberg.org/mutker/sigjitter/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	older = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	newer = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
)

func run(t *testing.T, uuid string, ts time.Time, name string, passed bool) *report.RunReport {
	t.Helper()

	c := &sampler.Capture{Reads: 1000, Elapsed: time.Second}
	if !passed {
		c.Reads = 10
	}
	c.Transitions = []sampler.Transition{
		{Delay: time.Second, State: signal.High},
		{Delay: 1500 * time.Millisecond, State: signal.Low},
	}

	r, err := report.FromThroughput(report.Meta{Name: name, UUID: uuid, Timestamp: ts}, c, 100)
	require.NoError(t, err)
	return r
}

func openStore(t *testing.T, path string) results.Store {
	t.Helper()

	store, err := results.NewService(results.Config{DBPath: path, Enabled: true, BackupOnMigrate: true}, logger.Nop())
	require.NoError(t, err)
	return store
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "results.db"))
	defer store.Close()

	assert.True(t, store.IsEnabled())

	require.NoError(t, store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true)))
	require.NoError(t, store.Record(ctx, run(t, "bbbb", newer, "daq-sampling", true)))
	require.NoError(t, store.Record(ctx, run(t, "bbbb", newer, "daq-sampling-irregular", false)))

	batches, err := store.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, "bbbb", batches[0].UUID, "newest batch first")
	assert.True(t, newer.Equal(batches[0].Timestamp))
	assert.Equal(t, 2, batches[0].Runs)
	assert.False(t, batches[0].Passed)

	assert.Equal(t, "aaaa", batches[1].UUID)
	assert.True(t, batches[1].Passed)

	runs, err := store.Runs(ctx, "bbbb")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "daq-sampling", runs[0].Name())
	assert.Equal(t, "daq-sampling-irregular", runs[1].Name())

	got, err := store.Run(ctx, "bbbb", "daq-sampling-irregular")
	require.NoError(t, err)
	want := run(t, "bbbb", newer, "daq-sampling-irregular", false)
	assert.Equal(t, want.Name(), got.Name())
	assert.Equal(t, want.UUID(), got.UUID())
	assert.True(t, want.Timestamp().Equal(got.Timestamp()))
	assert.Equal(t, want.Passed(), got.Passed())
	assert.Equal(t, want.Kind(), got.Kind())
	assert.Equal(t, want.Times(), got.Times())
	assert.Equal(t, want.States(), got.States())
	assert.Equal(t, want.Log(), got.Log())
}

func TestRunNotFound(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "results.db"))
	defer store.Close()

	_, err := store.Run(context.Background(), "missing", "nothing")
	assert.True(t, errors.HasCode(err, results.ErrRunNotFound))
}

func TestRecordDuplicateRun(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "results.db"))
	defer store.Close()

	require.NoError(t, store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true)))

	err := store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, results.ErrDuplicateRun))
}

func TestRecordRejectsNilAndCanceled(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "results.db"))
	defer store.Close()

	err := store.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, results.ErrInvalidReport))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true))
	assert.True(t, errors.HasCode(err, results.ErrOperationTimeout))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	store := openStore(t, path)
	require.NoError(t, store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true)))
	require.NoError(t, store.Close())

	store = openStore(t, path)
	defer store.Close()

	runs, err := store.Runs(ctx, "aaaa")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "results.db")

	store := openStore(t, path)
	require.NoError(t, store.Record(ctx, run(t, "aaaa", older, "daq-sampling", true)))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store = openStore(t, path)
	defer store.Close()

	runs, err := store.Runs(ctx, "aaaa")
	require.NoError(t, err)
	assert.Empty(t, runs, "schema was recreated")

	backups, err := os.ReadDir(results.BackupDir(path))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "results_v99_")
}

func TestDisabledStoreIsNoop(t *testing.T) {
	store, err := results.NewService(results.DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, store.IsEnabled())
	assert.NoError(t, store.Record(context.Background(), run(t, "aaaa", older, "daq-sampling", true)))

	batches, err := store.Batches(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, batches)

	_, err = store.Run(context.Background(), "aaaa", "daq-sampling")
	assert.True(t, errors.HasCode(err, results.ErrRunNotFound))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, results.Config{}.Validate())

	_, err := results.NewService(results.Config{Enabled: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, results.ErrInvalidConfig))
}
