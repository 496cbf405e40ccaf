package model

// EventType classifies an observed chain event.
type EventType string

const (
	EventTypeCreatePool      EventType = "CREATE_POOL"
	EventTypeAddLiquidity    EventType = "ADD_LIQUIDITY"
	EventTypeRemoveLiquidity EventType = "REMOVE_LIQUIDITY"
	EventTypeSwap            EventType = "SWAP"
	EventTypeDeletePool      EventType = "DELETE_POOL"
)

// PoolType identifies the pool's pricing curve.
type PoolType string

// DualAssetConstantProduct is the only pool type currently emitted by the
// chain; the column exists so future pool kinds do not force a migration.
const PoolTypeDualAssetConstantProduct PoolType = "DualAssetConstantProduct"

// LockedSource attributes locked value to the protocol component holding it.
type LockedSource string

const LockedSourcePablo LockedSource = "Pablo"
