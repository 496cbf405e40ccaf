package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pabloScope/internal/model"
	"pabloScope/internal/processor"
	"pabloScope/internal/storage"
)

const (
	linePoolCreated = `{"id":"ev-1","kind":"PoolCreated","version":"v10005","block_number":100,"timestamp":1668520000,` +
		`"payload":{"owner":"0x01","pool_id":7,"base_asset_id":1,"quote_asset_id":4}}`
	lineUnknownVersion = `{"id":"ev-2","kind":"Swapped","version":"v9000","block_number":101,"timestamp":1668520010,"payload":{}}`
	lineLiquidityAdded = `{"id":"ev-3","kind":"LiquidityAdded","version":"v10005","block_number":102,"timestamp":1668520020,` +
		`"payload":{"who":"0xaa","pool_id":7,"asset_amounts":[{"asset_id":1,"amount":"1000"},{"asset_id":4,"amount":"500"}],"minted_lp":"700"}}`
	lineSwapped = `{"id":"ev-4","kind":"Swapped","version":"v10005","block_number":103,"timestamp":1668520030,` +
		`"payload":{"who":"0xaa","pool_id":7,"base_asset_id":1,"base_amount":"100","quote_asset_id":4,"quote_amount":"50",` +
		`"fee":{"fee":"1","lp_fee":"0","owner_fee":"0","protocol_fee":"0","asset_id":4}}}`
	lineMissingPool = `{"id":"ev-9","kind":"LiquidityAdded","version":"v10005","block_number":104,"timestamp":1668520040,` +
		`"payload":{"who":"0xaa","pool_id":99,"asset_amounts":[{"asset_id":1,"amount":"1"},{"asset_id":4,"amount":"1"}],"minted_lp":"1"}}`
)

func writeFeed(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "events.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRunner(t *testing.T, dir, input string, store storage.Store) *Runner {
	t.Helper()
	return NewRunner(RunConfig{
		Input:             input,
		CheckpointPath:    filepath.Join(dir, "checkpoint.json"),
		CheckpointEnabled: true,
	}, processor.New(store, nil), nil)
}

func TestRunSkipsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	input := writeFeed(t, dir, linePoolCreated, lineUnknownVersion, lineLiquidityAdded)
	store := storage.NewMemory()

	runner := newTestRunner(t, dir, input, store)
	require.NoError(t, runner.Run(context.Background()))

	pool, err := store.GetLatestPoolByPoolID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, int64(1000), pool.TotalLiquidity.Int64())
	assert.Equal(t, uint64(2), pool.TransactionCount)
}

func TestRunHaltsOnFatal(t *testing.T) {
	dir := t.TempDir()
	input := writeFeed(t, dir, linePoolCreated, lineMissingPool, lineLiquidityAdded)
	store := storage.NewMemory()

	runner := newTestRunner(t, dir, input, store)
	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrPoolNotFound)

	// The checkpoint must still point at the last committed event so a
	// restart retries the failed one.
	cp, found, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ev-1", cp.LastEventID)
	assert.Equal(t, uint64(1), cp.Line)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewMemory()

	input := writeFeed(t, dir, linePoolCreated, lineLiquidityAdded)
	require.NoError(t, newTestRunner(t, dir, input, store).Run(context.Background()))

	// Grow the feed and run again: processed lines are skipped, otherwise
	// the duplicate-event guard would trip.
	input = writeFeed(t, dir, linePoolCreated, lineLiquidityAdded, lineSwapped)
	require.NoError(t, newTestRunner(t, dir, input, store).Run(context.Background()))

	pool, err := store.GetLatestPoolByPoolID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, uint64(3), pool.TransactionCount)
	assert.Equal(t, int64(50), pool.TotalVolume.Int64())

	cp, found, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ev-4", cp.LastEventID)
	assert.Equal(t, uint64(3), cp.Line)
}

// transientStore drops a configured number of SaveTransaction calls,
// including those issued inside a transaction.
type transientStore struct {
	storage.Store
	failures *int
}

func (s *transientStore) SaveTransaction(ctx context.Context, tx *model.PabloTransaction) error {
	if *s.failures > 0 {
		*s.failures--
		return errors.New("connection reset")
	}
	return s.Store.SaveTransaction(ctx, tx)
}

func (s *transientStore) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	return s.Store.WithTx(ctx, func(inner storage.Store) error {
		return fn(&transientStore{Store: inner, failures: s.failures})
	})
}

// A transient store failure halts the run with the checkpoint at the last
// committed event; a restart over the same feed applies the failed event.
func TestRunRestartAfterTransientStoreFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeFeed(t, dir, linePoolCreated, lineLiquidityAdded)
	mem := storage.NewMemory()
	failures := 1
	store := &transientStore{Store: mem, failures: &failures}

	err := newTestRunner(t, dir, input, store).Run(context.Background())
	require.Error(t, err)

	cp, found, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ev-1", cp.LastEventID)
	assert.Equal(t, uint64(1), cp.Line)

	// The halted event left no partial state behind.
	pool, err := mem.GetLatestPoolByPoolID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, int64(0), pool.TotalLiquidity.Int64())

	require.NoError(t, newTestRunner(t, dir, input, store).Run(context.Background()))

	pool, err = mem.GetLatestPoolByPoolID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, int64(1000), pool.TotalLiquidity.Int64())
	assert.Equal(t, uint64(2), pool.TransactionCount)

	cp, found, err = NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ev-3", cp.LastEventID)
	assert.Equal(t, uint64(2), cp.Line)
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	runner := newTestRunner(t, dir, filepath.Join(dir, "missing.jsonl"), storage.NewMemory())
	assert.Error(t, runner.Run(context.Background()))
}
