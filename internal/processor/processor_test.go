package processor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pabloScope/internal/adapter"
	"pabloScope/internal/ledger"
	"pabloScope/internal/model"
	"pabloScope/internal/recorder"
	"pabloScope/internal/storage"
)

var (
	alice = []byte{0xaa}
	owner = []byte{0x01}
)

func block(seq uint64) model.Block {
	return model.Block{
		EventID:   fmt.Sprintf("%010d-000001-test", seq),
		Number:    seq,
		Timestamp: time.Unix(86_400*19_000, 0).UTC().Add(time.Duration(seq) * time.Minute),
	}
}

func createPool(t *testing.T, p *Processor, seq uint64) {
	t.Helper()
	err := p.ProcessPoolCreated(context.Background(), block(seq), &adapter.PoolCreated{
		Owner:  owner,
		PoolID: 7,
		Assets: []adapter.AssetWeight{
			{AssetID: 1, Weight: 500_000},
			{AssetID: 4, Weight: 500_000},
		},
		QuoteAssetID: 4,
	})
	require.NoError(t, err)
}

func addLiquidity(t *testing.T, p *Processor, seq uint64, base, quote, minted int64) {
	t.Helper()
	err := p.ProcessLiquidityAdded(context.Background(), block(seq), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(base)},
			{AssetID: 4, Amount: big.NewInt(quote)},
		},
		MintedLp: big.NewInt(minted),
	})
	require.NoError(t, err)
}

func latestPool(t *testing.T, store storage.Store) *model.Pool {
	t.Helper()
	pool, err := store.GetLatestPoolByPoolID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, pool)
	return pool
}

func TestPoolCreated(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)

	pool := latestPool(t, store)
	assert.Equal(t, uint64(7), pool.PoolID)
	assert.Equal(t, "0x01", pool.Owner)
	assert.Equal(t, model.PoolTypeDualAssetConstantProduct, pool.PoolType)
	assert.Equal(t, uint64(4), pool.QuoteAssetID)
	assert.Equal(t, uint64(1), pool.TransactionCount)
	assert.Equal(t, int64(0), pool.TotalLiquidity.Int64())
	require.Len(t, pool.Assets, 2)
	for _, asset := range pool.Assets {
		assert.Equal(t, int64(0), asset.TotalLiquidity.Int64())
		assert.Equal(t, int64(0), asset.TotalVolume.Int64())
	}

	// Creation is privileged, no Activity row.
	assert.Empty(t, store.Activities())
	require.Len(t, store.Transactions(), 1)
	assert.Equal(t, model.EventTypeCreatePool, store.Transactions()[0].TxType)
}

func TestPoolCreatedTwice(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)
	err := p.ProcessPoolCreated(context.Background(), block(2), &adapter.PoolCreated{
		Owner:        owner,
		PoolID:       7,
		Assets:       []adapter.AssetWeight{{AssetID: 1, Weight: 500_000}, {AssetID: 4, Weight: 500_000}},
		QuoteAssetID: 4,
	})
	assert.Error(t, err)
}

// The full end-to-end scenario: create, add liquidity, swap.
func TestEndToEndScenario(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)
	ctx := context.Background()

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	pool := latestPool(t, store)
	// Pool-level liquidity is quote-denominated: twice the quote leg.
	assert.Equal(t, int64(1000), pool.TotalLiquidity.Int64())
	assert.Equal(t, int64(700), pool.LpIssued.Int64())
	assert.Equal(t, uint64(2), pool.TransactionCount)
	assert.Equal(t, int64(1000), pool.Asset(1).TotalLiquidity.Int64())
	assert.Equal(t, int64(500), pool.Asset(4).TotalLiquidity.Int64())

	err := p.ProcessSwapped(ctx, block(3), &adapter.Swapped{
		Who:          alice,
		PoolID:       7,
		BaseAssetID:  1,
		BaseAmount:   big.NewInt(100),
		QuoteAssetID: 4,
		QuoteAmount:  big.NewInt(50),
		Fee: adapter.Fee{
			Fee:         big.NewInt(1),
			LpFee:       big.NewInt(0),
			OwnerFee:    big.NewInt(0),
			ProtocolFee: big.NewInt(0),
			AssetID:     4,
		},
	})
	require.NoError(t, err)

	pool = latestPool(t, store)
	assert.Equal(t, uint64(3), pool.TransactionCount)
	assert.Equal(t, int64(899), pool.Asset(1).TotalLiquidity.Int64())
	assert.Equal(t, int64(100), pool.Asset(1).TotalVolume.Int64())
	assert.Equal(t, int64(550), pool.Asset(4).TotalLiquidity.Int64())
	assert.Equal(t, int64(50), pool.Asset(4).TotalVolume.Int64())
	assert.Equal(t, int64(1), pool.TotalFees.Int64())
	assert.Equal(t, int64(50), pool.TotalVolume.Int64())
	// The fee leaving the pool is already quote-denominated here.
	assert.Equal(t, int64(999), pool.TotalLiquidity.Int64())

	volume, err := store.GetHistoricalVolume(ctx, 4, model.LockedSourcePablo, ledger.Bucket(block(3).Timestamp))
	require.NoError(t, err)
	require.NotNil(t, volume)
	assert.Equal(t, int64(50), volume.Amount.Int64())

	// One activity per liquidity/swap event.
	assert.Len(t, store.Activities(), 2)
}

func TestAddRemoveRoundTrip(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)
	ctx := context.Background()

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	err := p.ProcessLiquidityRemoved(ctx, block(3), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(1000)},
			{AssetID: 4, Amount: big.NewInt(500)},
		},
		TotalIssuance: big.NewInt(0),
	})
	require.NoError(t, err)

	pool := latestPool(t, store)
	assert.Equal(t, int64(0), pool.TotalLiquidity.Int64())
	assert.Equal(t, int64(0), pool.Asset(1).TotalLiquidity.Int64())
	assert.Equal(t, int64(0), pool.Asset(4).TotalLiquidity.Int64())
	// Chain-reported issuance is authoritative on removal.
	assert.Equal(t, int64(0), pool.LpIssued.Int64())

	current, err := store.GetCurrentLockedValue(ctx, 1, model.LockedSourcePablo)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, int64(0), current.Amount.Int64())
}

func TestRemoveWithoutIssuanceKeepsLpIssued(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	// Legacy removals carry no total_issuance.
	err := p.ProcessLiquidityRemoved(context.Background(), block(3), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(100)},
			{AssetID: 4, Amount: big.NewInt(50)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(700), latestPool(t, store).LpIssued.Int64())
}

func TestDuplicateEventIsFatal(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	// Replaying the same event id must fail before any mutation.
	err := p.ProcessLiquidityAdded(context.Background(), block(2), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(1000)},
			{AssetID: 4, Amount: big.NewInt(500)},
		},
		MintedLp: big.NewInt(700),
	})
	assert.ErrorIs(t, err, recorder.ErrDuplicateEvent)

	pool := latestPool(t, store)
	assert.Equal(t, int64(1000), pool.TotalLiquidity.Int64())
	assert.Equal(t, int64(700), pool.LpIssued.Int64())
	assert.Equal(t, uint64(2), pool.TransactionCount)
}

func TestSwapReverse(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)
	ctx := context.Background()

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	// The event's quote asset (1) is not the pool's recorded quote asset
	// (4): a reverse swap. The pool-quote side is the event's base side.
	err := p.ProcessSwapped(ctx, block(3), &adapter.Swapped{
		Who:          alice,
		PoolID:       7,
		BaseAssetID:  4,
		BaseAmount:   big.NewInt(50),
		QuoteAssetID: 1,
		QuoteAmount:  big.NewInt(100),
		Fee: adapter.Fee{
			Fee:         big.NewInt(0),
			LpFee:       big.NewInt(0),
			OwnerFee:    big.NewInt(0),
			ProtocolFee: big.NewInt(0),
			AssetID:     1,
		},
	})
	require.NoError(t, err)

	pool := latestPool(t, store)
	assert.Equal(t, int64(50), pool.TotalVolume.Int64())
	assert.Equal(t, int64(450), pool.Asset(4).TotalLiquidity.Int64())
	assert.Equal(t, int64(1100), pool.Asset(1).TotalLiquidity.Int64())

	volume, err := store.GetHistoricalVolume(ctx, 4, model.LockedSourcePablo, ledger.Bucket(block(3).Timestamp))
	require.NoError(t, err)
	require.NotNil(t, volume)
	assert.Equal(t, int64(50), volume.Amount.Int64())
}

func TestSwapUnsupportedPoolType(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)
	ctx := context.Background()

	blk := block(1)
	pool := &model.Pool{
		ID:             blk.EventID,
		PoolID:         7,
		Owner:          "0x01",
		PoolType:       "StableSwap",
		QuoteAssetID:   4,
		LpIssued:       big.NewInt(0),
		TotalLiquidity: big.NewInt(0),
		TotalVolume:    big.NewInt(0),
		TotalFees:      big.NewInt(0),
		BlockNumber:    blk.Number,
		Timestamp:      blk.Timestamp,
	}
	require.NoError(t, store.SavePoolSnapshot(ctx, pool))

	err := p.ProcessSwapped(ctx, block(2), &adapter.Swapped{
		Who:          alice,
		PoolID:       7,
		BaseAssetID:  1,
		BaseAmount:   big.NewInt(100),
		QuoteAssetID: 4,
		QuoteAmount:  big.NewInt(50),
		Fee:          adapter.Fee{Fee: big.NewInt(0), LpFee: big.NewInt(0), OwnerFee: big.NewInt(0), ProtocolFee: big.NewInt(0), AssetID: 4},
	})
	assert.ErrorIs(t, err, ErrUnsupportedPoolType)
}

func TestMissingPoolIsFatal(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	err := p.ProcessLiquidityAdded(context.Background(), block(1), &adapter.LiquidityChanged{
		Who:      alice,
		PoolID:   99,
		Amounts:  []adapter.AssetAmount{{AssetID: 1, Amount: big.NewInt(10)}},
		MintedLp: big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestMissingAssetIsFatal(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)

	err := p.ProcessLiquidityAdded(context.Background(), block(2), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 9, Amount: big.NewInt(10)},
			{AssetID: 4, Amount: big.NewInt(10)},
		},
		MintedLp: big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestPoolDeletedDrainsPool(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	err := p.ProcessPoolDeleted(context.Background(), block(3), &adapter.PoolDeleted{
		Who:    owner,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(1000)},
			{AssetID: 4, Amount: big.NewInt(500)},
		},
	})
	require.NoError(t, err)

	pool := latestPool(t, store)
	assert.Equal(t, uint64(3), pool.TransactionCount)
	assert.Equal(t, int64(0), pool.TotalLiquidity.Int64())
	assert.Equal(t, int64(0), pool.Asset(1).TotalLiquidity.Int64())
	assert.Equal(t, int64(0), pool.Asset(4).TotalLiquidity.Int64())

	// Deletion is owner-attributed: no new activity beyond the add.
	assert.Len(t, store.Activities(), 1)
}

var errStoreDown = errors.New("store down")

// flakyStore fails SaveTransaction a configured number of times, inside
// transactions included, to simulate a store outage mid-event.
type flakyStore struct {
	storage.Store
	txFailures *int
}

func (f *flakyStore) SaveTransaction(ctx context.Context, tx *model.PabloTransaction) error {
	if *f.txFailures > 0 {
		*f.txFailures--
		return errStoreDown
	}
	return f.Store.SaveTransaction(ctx, tx)
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	return f.Store.WithTx(ctx, func(s storage.Store) error {
		return fn(&flakyStore{Store: s, txFailures: f.txFailures})
	})
}

// A store failure mid-event must roll back everything the event wrote, so a
// retry of the identical event succeeds instead of tripping the duplicate
// guard.
func TestRetryAfterStoreFailure(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	createPool(t, New(mem, nil), 1)

	failures := 1
	p := New(&flakyStore{Store: mem, txFailures: &failures}, nil)

	err := p.ProcessLiquidityAdded(ctx, block(2), &adapter.LiquidityChanged{
		Who:    alice,
		PoolID: 7,
		Amounts: []adapter.AssetAmount{
			{AssetID: 1, Amount: big.NewInt(1000)},
			{AssetID: 4, Amount: big.NewInt(500)},
		},
		MintedLp: big.NewInt(700),
	})
	require.ErrorIs(t, err, errStoreDown)

	// Nothing from the failed event is visible.
	event, err := mem.GetEvent(ctx, block(2).EventID)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, mem.Activities())

	pool := latestPool(t, mem)
	assert.Equal(t, uint64(1), pool.TransactionCount)
	assert.Equal(t, int64(0), pool.TotalLiquidity.Int64())

	// The identical event retried against a recovered store applies.
	addLiquidity(t, p, 2, 1000, 500, 700)

	pool = latestPool(t, mem)
	assert.Equal(t, uint64(2), pool.TransactionCount)
	assert.Equal(t, int64(1000), pool.TotalLiquidity.Int64())
	assert.Equal(t, int64(700), pool.LpIssued.Int64())

	current, err := mem.GetCurrentLockedValue(ctx, 1, model.LockedSourcePablo)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, int64(1000), current.Amount.Int64())
}

func TestSnapshotPerEvent(t *testing.T) {
	store := storage.NewMemory()
	p := New(store, nil)

	createPool(t, p, 1)
	addLiquidity(t, p, 2, 1000, 500, 700)

	pool := latestPool(t, store)
	// Each event materializes a new snapshot keyed by its event id.
	assert.Equal(t, block(2).EventID, pool.ID)
	for _, asset := range pool.Assets {
		assert.Equal(t, block(2).EventID, asset.PoolEventID)
	}
}
