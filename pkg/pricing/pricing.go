// Package pricing holds the a-priori price table used to estimate the
// cost of a turn before any model or provider call executes. Estimates
// are keyed by capability name, not by actual token usage.
package pricing

import "strconv"

// microUSD per invocation.
var capabilityPrices = map[string]int64{
	"PLANNING":         2_000,
	"REPLY":            30_000,
	"HYPOTHESIS":       45_000,
	"REFLECTION":       10_000,
	"KNOWLEDGE":        1_000,
	"OPENSCHOLAR":      15_000,
	"SEMANTIC-SCHOLAR": 5_000,
	"KNOWLEDGE-GRAPH":  8_000,
	"FILE-UPLOAD":      2_500,
	"DEEP-RESEARCH":    120_000,
}

const defaultPriceMicroUSD = 1_000

// CalculateRequestPrice returns the estimated USD price for invoking the
// named capabilities, as a decimal string (e.g. "0.0450"). Unknown names
// are charged the default rate rather than rejected, so a newly added
// provider never breaks cost tracking.
func CalculateRequestPrice(names []string) string {
	var total int64
	for _, name := range names {
		price, ok := capabilityPrices[name]
		if !ok {
			price = defaultPriceMicroUSD
		}
		total += price
	}
	return formatMicroUSD(total)
}

// Price returns the estimate for a single capability.
func Price(name string) string {
	return CalculateRequestPrice([]string{name})
}

// PriceFloat is a convenience for callers storing numeric cost values.
func PriceFloat(name string) float64 {
	f, _ := strconv.ParseFloat(Price(name), 64)
	return f
}

func formatMicroUSD(v int64) string {
	whole := v / 1_000_000
	frac := v % 1_000_000
	// four decimal places, matching the gateway's settlement granularity
	return strconv.FormatInt(whole, 10) + "." + pad4(frac/100)
}

func pad4(v int64) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
