// Package fees computes the facilitator's cut of a settled payment (spec.md §4.3).
// All arithmetic is integer math on base units; human-readable strings are
// derived only for display, never used as the source of truth.
package fees

import (
	"fmt"
	"math/big"
	"strings"

	domain "github.com/evmx402/facilitator/internal/types"
)

// DefaultBps is the facilitator's default fee rate, 1%.
const DefaultBps = 100

const bpsDenominator = 10000

// Split computes the fee and net amount for a base-unit amount at feeBps,
// using floor division so fee+net never exceeds amount. decimals and symbol
// are used only to render the human-readable Amount strings.
func Split(amountBase string, feeBps int64, decimals uint8, symbol string) (domain.FeeBreakdown, error) {
	amount, ok := new(big.Int).SetString(amountBase, 10)
	if !ok || amount.Sign() < 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("invalid base amount %q", amountBase)
	}

	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	fee.Quo(fee, big.NewInt(bpsDenominator))

	net := new(big.Int).Sub(amount, fee)

	return domain.FeeBreakdown{
		Amount: domain.Amount{Human: humanize(amount, decimals), Base: amount.String(), Symbol: symbol},
		Fee:    domain.Amount{Human: humanize(fee, decimals), Base: fee.String(), Symbol: symbol},
		Net:    domain.Amount{Human: humanize(net, decimals), Base: net.String(), Symbol: symbol},
	}, nil
}

// humanize renders a base-unit integer as a decimal string with trailing
// zeros and a trailing decimal point trimmed, e.g. 1000000 at 6 decimals
// becomes "1", 990000 becomes "0.99".
func humanize(value *big.Int, decimals uint8) string {
	if decimals == 0 {
		return value.String()
	}

	s := value.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	for len(s) <= int(decimals) {
		s = "0" + s
	}

	intPart := s[:len(s)-int(decimals)]
	fracPart := strings.TrimRight(s[len(s)-int(decimals):], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}
