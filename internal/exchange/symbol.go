package exchange

import "strings"

// QuoteAsset is the settlement currency every position in this engine is
// denominated in.
const QuoteAsset = "USDT"

// FuturesSymbol maps a bare coin name to its USDT-margined futures symbol,
// e.g. "btc" -> "BTCUSDT".
func FuturesSymbol(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset)) + QuoteAsset
}
