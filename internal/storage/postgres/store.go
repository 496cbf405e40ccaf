package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pabloScope/internal/model"
	"pabloScope/internal/storage"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so the same store
// methods serve pooled access and transaction-scoped access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
}

// Store provides Postgres persistence for the processing core. Amount
// columns are NUMERIC and travel as decimal strings, so values round-trip
// through big.Int without precision loss.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, db: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn against a transaction-scoped view of the store. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func parseNumeric(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric: %s", value)
	}
	return parsed, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, account_id, event_type, block_number, ts
		FROM events WHERE id = $1
	`, id)

	var event model.Event
	var blockNumber int64
	if err := row.Scan(&event.ID, &event.AccountID, &event.EventType, &blockNumber, &event.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	event.BlockNumber = uint64(blockNumber)
	return &event, nil
}

// SaveEvent is a plain insert: the events table is append-only and a primary
// key conflict must surface, never overwrite.
func (s *Store) SaveEvent(ctx context.Context, event *model.Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, account_id, event_type, block_number, ts, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, event.ID, event.AccountID, event.EventType, int64(event.BlockNumber), event.Timestamp)
	return err
}

func (s *Store) SaveActivity(ctx context.Context, activity *model.Activity) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO activities (id, event_id, account_id, ts, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			account_id = EXCLUDED.account_id,
			ts = EXCLUDED.ts
	`, activity.ID, activity.EventID, activity.AccountID, activity.Timestamp)
	return err
}

func (s *Store) GetLatestPoolByPoolID(ctx context.Context, poolID uint64) (*model.Pool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, pool_id, owner, pool_type, quote_asset_id,
			lp_issued::text, transaction_count,
			total_liquidity::text, total_volume::text, total_fees::text,
			block_number, ts
		FROM pools
		WHERE pool_id = $1
		ORDER BY block_number DESC
		LIMIT 1
	`, int64(poolID))

	var pool model.Pool
	var poolIDValue, quoteAssetID, transactionCount, blockNumber int64
	var lpIssued, totalLiquidity, totalVolume, totalFees string
	err := row.Scan(
		&pool.ID, &poolIDValue, &pool.Owner, &pool.PoolType, &quoteAssetID,
		&lpIssued, &transactionCount,
		&totalLiquidity, &totalVolume, &totalFees,
		&blockNumber, &pool.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	pool.PoolID = uint64(poolIDValue)
	pool.QuoteAssetID = uint64(quoteAssetID)
	pool.TransactionCount = uint64(transactionCount)
	pool.BlockNumber = uint64(blockNumber)
	if pool.LpIssued, err = parseNumeric(lpIssued); err != nil {
		return nil, err
	}
	if pool.TotalLiquidity, err = parseNumeric(totalLiquidity); err != nil {
		return nil, err
	}
	if pool.TotalVolume, err = parseNumeric(totalVolume); err != nil {
		return nil, err
	}
	if pool.TotalFees, err = parseNumeric(totalFees); err != nil {
		return nil, err
	}

	if pool.Assets, err = s.poolAssets(ctx, pool.ID); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *Store) poolAssets(ctx context.Context, poolEventID string) ([]*model.PoolAsset, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, pool_event_id, pool_id, asset_id, weight,
			total_liquidity::text, total_volume::text, block_number, ts
		FROM pool_assets
		WHERE pool_event_id = $1
		ORDER BY asset_id
	`, poolEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*model.PoolAsset
	for rows.Next() {
		var asset model.PoolAsset
		var poolID, assetID, weight, blockNumber int64
		var totalLiquidity, totalVolume string
		err := rows.Scan(
			&asset.ID, &asset.PoolEventID, &poolID, &assetID, &weight,
			&totalLiquidity, &totalVolume, &blockNumber, &asset.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		asset.PoolID = uint64(poolID)
		asset.AssetID = uint64(assetID)
		asset.Weight = uint64(weight)
		asset.BlockNumber = uint64(blockNumber)
		if asset.TotalLiquidity, err = parseNumeric(totalLiquidity); err != nil {
			return nil, err
		}
		if asset.TotalVolume, err = parseNumeric(totalVolume); err != nil {
			return nil, err
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// SavePoolSnapshot upserts the asset rows and the pool row in one batch
// round-trip.
func (s *Store) SavePoolSnapshot(ctx context.Context, pool *model.Pool) error {
	batch := &pgx.Batch{}
	for _, asset := range pool.Assets {
		batch.Queue(`
			INSERT INTO pool_assets (
				id, pool_event_id, pool_id, asset_id, weight,
				total_liquidity, total_volume, block_number, ts, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
			ON CONFLICT (id) DO UPDATE SET
				total_liquidity = EXCLUDED.total_liquidity,
				total_volume = EXCLUDED.total_volume,
				block_number = EXCLUDED.block_number,
				ts = EXCLUDED.ts
		`,
			asset.ID,
			asset.PoolEventID,
			int64(asset.PoolID),
			int64(asset.AssetID),
			int64(asset.Weight),
			asset.TotalLiquidity.String(),
			asset.TotalVolume.String(),
			int64(asset.BlockNumber),
			asset.Timestamp,
		)
	}
	batch.Queue(`
		INSERT INTO pools (
			id, pool_id, owner, pool_type, quote_asset_id, lp_issued,
			transaction_count, total_liquidity, total_volume, total_fees,
			block_number, ts, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		ON CONFLICT (id) DO UPDATE SET
			lp_issued = EXCLUDED.lp_issued,
			transaction_count = EXCLUDED.transaction_count,
			total_liquidity = EXCLUDED.total_liquidity,
			total_volume = EXCLUDED.total_volume,
			total_fees = EXCLUDED.total_fees,
			block_number = EXCLUDED.block_number,
			ts = EXCLUDED.ts
	`,
		pool.ID,
		int64(pool.PoolID),
		pool.Owner,
		pool.PoolType,
		int64(pool.QuoteAssetID),
		pool.LpIssued.String(),
		int64(pool.TransactionCount),
		pool.TotalLiquidity.String(),
		pool.TotalVolume.String(),
		pool.TotalFees.String(),
		int64(pool.BlockNumber),
		pool.Timestamp,
	)

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

type liquidityChangeRecord struct {
	AssetID uint64 `json:"asset_id"`
	Amount  string `json:"amount"`
}

func (s *Store) SaveTransaction(ctx context.Context, tx *model.PabloTransaction) error {
	changes := make([]liquidityChangeRecord, 0, len(tx.LiquidityChanges))
	for _, change := range tx.LiquidityChanges {
		changes = append(changes, liquidityChangeRecord{
			AssetID: change.AssetID,
			Amount:  change.Amount.String(),
		})
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal liquidity changes: %w", err)
	}

	var baseAmount, quoteAmount, fee *string
	if tx.BaseAssetAmount != nil {
		val := tx.BaseAssetAmount.String()
		baseAmount = &val
	}
	if tx.QuoteAssetAmount != nil {
		val := tx.QuoteAssetAmount.String()
		quoteAmount = &val
	}
	if tx.Fee != nil {
		val := tx.Fee.String()
		fee = &val
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO pablo_transactions (
			id, event_id, pool_id, tx_type, spot_price,
			base_asset_id, base_asset_amount, quote_asset_id, quote_asset_amount,
			fee, liquidity_changes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (id) DO NOTHING
	`,
		tx.ID,
		tx.EventID,
		int64(tx.PoolID),
		tx.TxType,
		tx.SpotPrice,
		int64(tx.BaseAssetID),
		baseAmount,
		int64(tx.QuoteAssetID),
		quoteAmount,
		fee,
		changesJSON,
	)
	return err
}

func (s *Store) GetCurrentLockedValue(ctx context.Context, assetID uint64, source model.LockedSource) (*model.CurrentLockedValue, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, asset_id, source, amount::text
		FROM current_locked_values
		WHERE asset_id = $1 AND source = $2
	`, int64(assetID), source)

	var value model.CurrentLockedValue
	var assetIDValue int64
	var amount string
	if err := row.Scan(&value.ID, &assetIDValue, &value.Source, &amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	value.AssetID = uint64(assetIDValue)

	var err error
	if value.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &value, nil
}

func (s *Store) SaveCurrentLockedValue(ctx context.Context, value *model.CurrentLockedValue) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO current_locked_values (id, asset_id, source, amount, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, value.ID, int64(value.AssetID), value.Source, value.Amount.String())
	return err
}

func (s *Store) GetHistoricalLockedValue(ctx context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalLockedValue, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, asset_id, source, bucket_ts, amount::text
		FROM historical_locked_values
		WHERE asset_id = $1 AND source = $2 AND bucket_ts = $3
	`, int64(assetID), source, bucket)

	var value model.HistoricalLockedValue
	var assetIDValue int64
	var amount string
	if err := row.Scan(&value.ID, &assetIDValue, &value.Source, &value.Bucket, &amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	value.AssetID = uint64(assetIDValue)

	var err error
	if value.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &value, nil
}

func (s *Store) SaveHistoricalLockedValue(ctx context.Context, value *model.HistoricalLockedValue) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO historical_locked_values (id, asset_id, source, bucket_ts, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, value.ID, int64(value.AssetID), value.Source, value.Bucket, value.Amount.String())
	return err
}

func (s *Store) GetHistoricalVolume(ctx context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalVolume, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, asset_id, source, bucket_ts, amount::text
		FROM historical_volumes
		WHERE asset_id = $1 AND source = $2 AND bucket_ts = $3
	`, int64(assetID), source, bucket)

	var value model.HistoricalVolume
	var assetIDValue int64
	var amount string
	if err := row.Scan(&value.ID, &assetIDValue, &value.Source, &value.Bucket, &amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	value.AssetID = uint64(assetIDValue)

	var err error
	if value.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &value, nil
}

func (s *Store) SaveHistoricalVolume(ctx context.Context, value *model.HistoricalVolume) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO historical_volumes (id, asset_id, source, bucket_ts, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, value.ID, int64(value.AssetID), value.Source, value.Bucket, value.Amount.String())
	return err
}
