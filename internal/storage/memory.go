package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pabloScope/internal/model"
)

// Memory is an in-process Store used for tests and dry runs. Snapshot rows
// accumulate exactly as they would in Postgres, so the latest-pool query has
// real history to resolve against.
type Memory struct {
	mu           sync.Mutex
	events       map[string]*model.Event
	activities   []*model.Activity
	pools        []*model.Pool
	poolAssets   []*model.PoolAsset
	transactions []*model.PabloTransaction
	currentLV    map[string]*model.CurrentLockedValue
	historicalLV map[string]*model.HistoricalLockedValue
	volumes      map[string]*model.HistoricalVolume
}

func NewMemory() *Memory {
	return &Memory{
		events:       make(map[string]*model.Event),
		currentLV:    make(map[string]*model.CurrentLockedValue),
		historicalLV: make(map[string]*model.HistoricalLockedValue),
		volumes:      make(map[string]*model.HistoricalVolume),
	}
}

// memorySnapshot holds the state captured at the start of WithTx. The stored
// entities are never mutated in place (all writes go through Save methods
// with fresh values), so copying the containers is enough to roll back.
type memorySnapshot struct {
	events       map[string]*model.Event
	activities   []*model.Activity
	pools        []*model.Pool
	poolAssets   []*model.PoolAsset
	transactions []*model.PabloTransaction
	currentLV    map[string]*model.CurrentLockedValue
	historicalLV map[string]*model.HistoricalLockedValue
	volumes      map[string]*model.HistoricalVolume
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// WithTx captures the full state up front and restores it when fn fails, so
// a partially applied event leaves no trace.
func (m *Memory) WithTx(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	snap := memorySnapshot{
		events:       copyMap(m.events),
		activities:   append([]*model.Activity(nil), m.activities...),
		pools:        append([]*model.Pool(nil), m.pools...),
		poolAssets:   append([]*model.PoolAsset(nil), m.poolAssets...),
		transactions: append([]*model.PabloTransaction(nil), m.transactions...),
		currentLV:    copyMap(m.currentLV),
		historicalLV: copyMap(m.historicalLV),
		volumes:      copyMap(m.volumes),
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.events = snap.events
		m.activities = snap.activities
		m.pools = snap.pools
		m.poolAssets = snap.poolAssets
		m.transactions = snap.transactions
		m.currentLV = snap.currentLV
		m.historicalLV = snap.historicalLV
		m.volumes = snap.volumes
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id], nil
}

func (m *Memory) SaveEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; ok {
		return fmt.Errorf("event %s already exists", event.ID)
	}
	m.events[event.ID] = event
	return nil
}

func (m *Memory) SaveActivity(_ context.Context, activity *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, activity)
	return nil
}

func (m *Memory) GetLatestPoolByPoolID(_ context.Context, poolID uint64) (*model.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.Pool
	for _, pool := range m.pools {
		if pool.PoolID != poolID {
			continue
		}
		if latest == nil || pool.BlockNumber >= latest.BlockNumber {
			latest = pool
		}
	}
	if latest == nil {
		return nil, nil
	}

	// Reassemble the snapshot's asset rows in insertion order.
	assets := make([]*model.PoolAsset, 0, 2)
	for _, asset := range m.poolAssets {
		if asset.PoolEventID == latest.ID {
			assets = append(assets, asset)
		}
	}
	latest.Assets = assets
	return latest, nil
}

func (m *Memory) SavePoolSnapshot(_ context.Context, pool *model.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, asset := range pool.Assets {
		stored := false
		for i, existing := range m.poolAssets {
			if existing.ID == asset.ID {
				m.poolAssets[i] = asset
				stored = true
				break
			}
		}
		if !stored {
			m.poolAssets = append(m.poolAssets, asset)
		}
	}

	for i, existing := range m.pools {
		if existing.ID == pool.ID {
			m.pools[i] = pool
			return nil
		}
	}
	m.pools = append(m.pools, pool)
	return nil
}

func (m *Memory) SaveTransaction(_ context.Context, tx *model.PabloTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) GetCurrentLockedValue(_ context.Context, assetID uint64, source model.LockedSource) (*model.CurrentLockedValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.currentLV[model.CurrentLockedValueID(assetID, source)]
	if !ok {
		return nil, nil
	}
	// Callers adjust the returned row before saving; copy so the stored one
	// only changes on Save.
	clone := *value
	return &clone, nil
}

func (m *Memory) SaveCurrentLockedValue(_ context.Context, value *model.CurrentLockedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentLV[value.ID] = value
	return nil
}

func (m *Memory) GetHistoricalLockedValue(_ context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalLockedValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.historicalLV[model.BucketID(assetID, source, bucket)]
	if !ok {
		return nil, nil
	}
	clone := *value
	return &clone, nil
}

func (m *Memory) SaveHistoricalLockedValue(_ context.Context, value *model.HistoricalLockedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historicalLV[value.ID] = value
	return nil
}

func (m *Memory) GetHistoricalVolume(_ context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalVolume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.volumes[model.BucketID(assetID, source, bucket)]
	if !ok {
		return nil, nil
	}
	clone := *value
	return &clone, nil
}

func (m *Memory) SaveHistoricalVolume(_ context.Context, value *model.HistoricalVolume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[value.ID] = value
	return nil
}

// Activities returns all recorded activities, oldest first.
func (m *Memory) Activities() []*model.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Activity(nil), m.activities...)
}

// Transactions returns all recorded transactions, oldest first.
func (m *Memory) Transactions() []*model.PabloTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.PabloTransaction(nil), m.transactions...)
}
