// Package pricing holds the pure swap math: spot price and fee conversion.
// Everything is big.Int / big.Rat; no floating point, so results are exact
// and replay-stable across millions of events.
package pricing

import (
	"fmt"
	"math/big"
)

const spotPriceScale = 18

// SpotPrice is the exchange rate implied by a single swap, expressed as
// quote amount over base amount.
func SpotPrice(quoteAmount, baseAmount *big.Int) (*big.Rat, error) {
	if baseAmount == nil || baseAmount.Sign() == 0 {
		return nil, fmt.Errorf("spot price: zero base amount")
	}
	if quoteAmount == nil {
		return nil, fmt.Errorf("spot price: nil quote amount")
	}
	return new(big.Rat).SetFrac(quoteAmount, baseAmount), nil
}

// FeeInQuote converts a fee charged in feeAsset into quote-asset terms.
// When the fee is already quote-denominated the amount passes through
// unchanged; otherwise it is multiplied by the spot price, truncating
// toward zero.
func FeeInQuote(spotPrice *big.Rat, quoteAssetID, feeAssetID uint64, fee *big.Int) *big.Int {
	if fee == nil {
		return big.NewInt(0)
	}
	if feeAssetID == quoteAssetID {
		return new(big.Int).Set(fee)
	}

	converted := new(big.Int).Mul(fee, spotPrice.Num())
	return converted.Quo(converted, spotPrice.Denom())
}

// FormatSpotPrice renders the spot price as a fixed-scale decimal string for
// the transaction record.
func FormatSpotPrice(spotPrice *big.Rat) string {
	if spotPrice == nil {
		return "0"
	}
	return spotPrice.FloatString(spotPriceScale)
}
