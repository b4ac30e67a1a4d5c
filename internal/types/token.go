/*

This is a custom type for tokens which contains all the state needed for
pricing assets through the oracle.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type Token struct {
	Symbol   string            `json:"symbol"`    // e.g., "usdc"
	Denom    string            `json:"denom"`     // e.g., "uusdc"
	Decimals int               `json:"decimals"`  // e.g., 6 = 1000000 base units per token
	PriceUSD sdkmath.LegacyDec `json:"price_usd"` // e.g., 1.0
}
