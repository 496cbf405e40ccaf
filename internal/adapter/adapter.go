package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// ErrUnknownVersion marks a wire event whose declared schema version matches
// no known mapping. The adapter fails closed: the caller skips the event and
// must not guess at the payload.
var ErrUnknownVersion = errors.New("unknown schema version")

// AssetAmount is one (asset, amount) entry of a liquidity payload.
type AssetAmount struct {
	AssetID uint64
	Amount  *big.Int
}

// AssetWeight is one (asset, weight) entry of a pool creation payload.
// Weight is in permill; current-schema pools are fixed 50/50.
type AssetWeight struct {
	AssetID uint64
	Weight  uint64
}

// Fee is the fee breakdown attached to a swap. Fee is the total charged,
// LpFee the part staying in the pool for liquidity providers.
type Fee struct {
	Fee         *big.Int
	LpFee       *big.Int
	OwnerFee    *big.Int
	ProtocolFee *big.Int
	AssetID     uint64
}

// PoolCreated is the canonical pool creation payload. Assets are ordered with
// the quote asset last; QuoteAssetID repeats it for direct access.
type PoolCreated struct {
	Owner        []byte
	PoolID       uint64
	Assets       []AssetWeight
	QuoteAssetID uint64
}

// LiquidityChanged is the canonical payload for both liquidity directions.
// MintedLp is set on adds. TotalIssuance is the chain-reported LP supply on
// current-schema removals and nil on legacy ones.
type LiquidityChanged struct {
	Who           []byte
	PoolID        uint64
	Amounts       []AssetAmount
	MintedLp      *big.Int
	TotalIssuance *big.Int
}

// Swapped is the canonical swap payload. Base and quote are the event's own
// labels; direction against the pool's recorded quote asset is resolved by
// the processor.
type Swapped struct {
	Who          []byte
	PoolID       uint64
	BaseAssetID  uint64
	BaseAmount   *big.Int
	QuoteAssetID uint64
	QuoteAmount  *big.Int
	Fee          Fee
}

// PoolDeleted is the canonical pool deletion payload: the amounts refunded to
// the owner when the pool is drained.
type PoolDeleted struct {
	Who     []byte
	PoolID  uint64
	Amounts []AssetAmount
}

// Decoded is the version-agnostic result of mapping a wire event. Exactly one
// payload pointer is set, matching Kind.
type Decoded struct {
	Kind             string
	PoolCreated      *PoolCreated
	LiquidityAdded   *LiquidityChanged
	LiquidityRemoved *LiquidityChanged
	Swapped          *Swapped
	PoolDeleted      *PoolDeleted
}

type wireAssetWeight struct {
	AssetID uint64 `json:"asset_id"`
	Weight  uint64 `json:"weight"`
}

type wireAssetAmount struct {
	AssetID uint64 `json:"asset_id"`
	Amount  string `json:"amount"`
}

type wireFee struct {
	Fee         string `json:"fee"`
	LpFee       string `json:"lp_fee"`
	OwnerFee    string `json:"owner_fee"`
	ProtocolFee string `json:"protocol_fee"`
	AssetID     uint64 `json:"asset_id"`
}

type wirePoolCreatedLegacy struct {
	Owner        string            `json:"owner"`
	PoolID       uint64            `json:"pool_id"`
	AssetWeights []wireAssetWeight `json:"asset_weights"`
}

type wirePoolCreatedCurrent struct {
	Owner        string `json:"owner"`
	PoolID       uint64 `json:"pool_id"`
	BaseAssetID  uint64 `json:"base_asset_id"`
	QuoteAssetID uint64 `json:"quote_asset_id"`
}

type wireLiquidityChanged struct {
	Who           string            `json:"who"`
	PoolID        uint64            `json:"pool_id"`
	AssetAmounts  []wireAssetAmount `json:"asset_amounts"`
	MintedLp      string            `json:"minted_lp"`
	TotalIssuance string            `json:"total_issuance"`
}

type wireSwapped struct {
	Who          string  `json:"who"`
	PoolID       uint64  `json:"pool_id"`
	BaseAssetID  uint64  `json:"base_asset_id"`
	BaseAmount   string  `json:"base_amount"`
	QuoteAssetID uint64  `json:"quote_asset_id"`
	QuoteAmount  string  `json:"quote_amount"`
	Fee          wireFee `json:"fee"`
}

type wirePoolDeleted struct {
	Who          string            `json:"who"`
	PoolID       uint64            `json:"pool_id"`
	AssetAmounts []wireAssetAmount `json:"asset_amounts"`
}

// Decode maps a versioned wire event onto the canonical payload. Events with
// an unrecognized version return ErrUnknownVersion; malformed payloads for a
// recognized version are ordinary (fatal) errors.
func Decode(ev WireEvent) (Decoded, error) {
	if ev.Version != VersionLegacy && ev.Version != VersionCurrent {
		return Decoded{}, fmt.Errorf("%w: %q", ErrUnknownVersion, ev.Version)
	}

	switch ev.Kind {
	case KindPoolCreated:
		payload, err := decodePoolCreated(ev)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: ev.Kind, PoolCreated: payload}, nil
	case KindLiquidityAdded:
		payload, err := decodeLiquidityChanged(ev, false)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: ev.Kind, LiquidityAdded: payload}, nil
	case KindLiquidityRemoved:
		payload, err := decodeLiquidityChanged(ev, true)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: ev.Kind, LiquidityRemoved: payload}, nil
	case KindSwapped:
		payload, err := decodeSwapped(ev)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: ev.Kind, Swapped: payload}, nil
	case KindPoolDeleted:
		payload, err := decodePoolDeleted(ev)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: ev.Kind, PoolDeleted: payload}, nil
	default:
		return Decoded{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func decodePoolCreated(ev WireEvent) (*PoolCreated, error) {
	if ev.Version == VersionLegacy {
		var wire wirePoolCreatedLegacy
		if err := json.Unmarshal(ev.Payload, &wire); err != nil {
			return nil, fmt.Errorf("decode PoolCreated %s: %w", ev.Version, err)
		}
		owner, err := decodeAccount(wire.Owner)
		if err != nil {
			return nil, err
		}
		if len(wire.AssetWeights) < 2 {
			return nil, fmt.Errorf("PoolCreated: expected at least 2 asset weights, got %d", len(wire.AssetWeights))
		}

		assets := make([]AssetWeight, 0, len(wire.AssetWeights))
		for _, aw := range wire.AssetWeights {
			assets = append(assets, AssetWeight{AssetID: aw.AssetID, Weight: aw.Weight})
		}

		// Legacy events carry no explicit role; the quote asset is the last
		// entry by position.
		return &PoolCreated{
			Owner:        owner,
			PoolID:       wire.PoolID,
			Assets:       assets,
			QuoteAssetID: assets[len(assets)-1].AssetID,
		}, nil
	}

	var wire wirePoolCreatedCurrent
	if err := json.Unmarshal(ev.Payload, &wire); err != nil {
		return nil, fmt.Errorf("decode PoolCreated %s: %w", ev.Version, err)
	}
	owner, err := decodeAccount(wire.Owner)
	if err != nil {
		return nil, err
	}
	if wire.BaseAssetID == wire.QuoteAssetID {
		return nil, fmt.Errorf("PoolCreated: base and quote asset are both %d", wire.BaseAssetID)
	}

	return &PoolCreated{
		Owner:  owner,
		PoolID: wire.PoolID,
		Assets: []AssetWeight{
			{AssetID: wire.BaseAssetID, Weight: 500_000},
			{AssetID: wire.QuoteAssetID, Weight: 500_000},
		},
		QuoteAssetID: wire.QuoteAssetID,
	}, nil
}

func decodeLiquidityChanged(ev WireEvent, removal bool) (*LiquidityChanged, error) {
	var wire wireLiquidityChanged
	if err := json.Unmarshal(ev.Payload, &wire); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", ev.Kind, ev.Version, err)
	}
	who, err := decodeAccount(wire.Who)
	if err != nil {
		return nil, err
	}
	if ev.Version == VersionCurrent && len(wire.AssetAmounts) != 2 {
		return nil, fmt.Errorf("%s: expected 2 asset amounts, got %d", ev.Kind, len(wire.AssetAmounts))
	}
	if len(wire.AssetAmounts) == 0 {
		return nil, fmt.Errorf("%s: empty asset amounts", ev.Kind)
	}

	amounts := make([]AssetAmount, 0, len(wire.AssetAmounts))
	for _, aa := range wire.AssetAmounts {
		amount, err := parseAmount(aa.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s asset %d: %w", ev.Kind, aa.AssetID, err)
		}
		amounts = append(amounts, AssetAmount{AssetID: aa.AssetID, Amount: amount})
	}

	payload := &LiquidityChanged{Who: who, PoolID: wire.PoolID, Amounts: amounts}

	if !removal {
		payload.MintedLp, err = parseAmount(wire.MintedLp)
		if err != nil {
			return nil, fmt.Errorf("%s minted_lp: %w", ev.Kind, err)
		}
	}

	// The legacy runtime did not report LP supply on removal; only the
	// current schema carries an authoritative total_issuance.
	if removal && ev.Version == VersionCurrent {
		payload.TotalIssuance, err = parseAmount(wire.TotalIssuance)
		if err != nil {
			return nil, fmt.Errorf("%s total_issuance: %w", ev.Kind, err)
		}
	}

	return payload, nil
}

func decodeSwapped(ev WireEvent) (*Swapped, error) {
	var wire wireSwapped
	if err := json.Unmarshal(ev.Payload, &wire); err != nil {
		return nil, fmt.Errorf("decode Swapped %s: %w", ev.Version, err)
	}
	who, err := decodeAccount(wire.Who)
	if err != nil {
		return nil, err
	}

	baseAmount, err := parseAmount(wire.BaseAmount)
	if err != nil {
		return nil, fmt.Errorf("Swapped base_amount: %w", err)
	}
	quoteAmount, err := parseAmount(wire.QuoteAmount)
	if err != nil {
		return nil, fmt.Errorf("Swapped quote_amount: %w", err)
	}

	fee, err := decodeFee(wire.Fee)
	if err != nil {
		return nil, err
	}

	return &Swapped{
		Who:          who,
		PoolID:       wire.PoolID,
		BaseAssetID:  wire.BaseAssetID,
		BaseAmount:   baseAmount,
		QuoteAssetID: wire.QuoteAssetID,
		QuoteAmount:  quoteAmount,
		Fee:          fee,
	}, nil
}

func decodeFee(wire wireFee) (Fee, error) {
	fee := Fee{AssetID: wire.AssetID}

	var err error
	if fee.Fee, err = parseAmount(wire.Fee); err != nil {
		return Fee{}, fmt.Errorf("fee: %w", err)
	}
	if fee.LpFee, err = parseAmount(wire.LpFee); err != nil {
		return Fee{}, fmt.Errorf("lp_fee: %w", err)
	}
	if fee.OwnerFee, err = parseAmount(wire.OwnerFee); err != nil {
		return Fee{}, fmt.Errorf("owner_fee: %w", err)
	}
	if fee.ProtocolFee, err = parseAmount(wire.ProtocolFee); err != nil {
		return Fee{}, fmt.Errorf("protocol_fee: %w", err)
	}
	return fee, nil
}

func decodePoolDeleted(ev WireEvent) (*PoolDeleted, error) {
	var wire wirePoolDeleted
	if err := json.Unmarshal(ev.Payload, &wire); err != nil {
		return nil, fmt.Errorf("decode PoolDeleted %s: %w", ev.Version, err)
	}
	who, err := decodeAccount(wire.Who)
	if err != nil {
		return nil, err
	}

	amounts := make([]AssetAmount, 0, len(wire.AssetAmounts))
	for _, aa := range wire.AssetAmounts {
		amount, err := parseAmount(aa.Amount)
		if err != nil {
			return nil, fmt.Errorf("PoolDeleted asset %d: %w", aa.AssetID, err)
		}
		amounts = append(amounts, AssetAmount{AssetID: aa.AssetID, Amount: amount})
	}

	return &PoolDeleted{Who: who, PoolID: wire.PoolID, Amounts: amounts}, nil
}
