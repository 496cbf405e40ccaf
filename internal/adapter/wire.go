package adapter

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Schema version tags observed in the event history. v10003 is the
// multi-asset-weight schema, v10005 the explicit base/quote schema.
const (
	VersionLegacy  = "v10003"
	VersionCurrent = "v10005"
)

// Event kind discriminators used on the wire.
const (
	KindPoolCreated      = "PoolCreated"
	KindLiquidityAdded   = "LiquidityAdded"
	KindLiquidityRemoved = "LiquidityRemoved"
	KindSwapped          = "Swapped"
	KindPoolDeleted      = "PoolDeleted"
)

// WireEvent is one decoded chain event as delivered by the upstream feed.
// Payload stays raw until the version adapter maps it.
type WireEvent struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Version     string          `json:"version"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   uint64          `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// EncodeAccount turns raw actor bytes into the canonical account id string.
func EncodeAccount(raw []byte) string {
	return "0x" + hex.EncodeToString(raw)
}

func decodeAccount(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty account")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid account %q: %w", value, err)
	}
	return raw, nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
