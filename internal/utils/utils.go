package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BaseUnitDecimals is the number of decimals between base units and display units
const BaseUnitDecimals = 8

// ProtocolFeeRate is the share of settled deposits sent to the treasury
var ProtocolFeeRate = decimal.RequireFromString("0.05")

// FromBaseUnits converts an integer base-unit string (e.g. sompi) into display
// units using the given number of decimals
func FromBaseUnits(raw string, decimals int32) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return d.Shift(-decimals).InexactFloat64(), nil
}

// ToBaseUnits converts display units into an integer base-unit string,
// truncating anything below one base unit
func ToBaseUnits(amount float64, decimals int32) string {
	return decimal.NewFromFloat(amount).Shift(decimals).Truncate(0).String()
}

// SplitFee splits a settlement amount into the protocol fee, rounded down to
// base-unit precision, and the remainder. The remainder is derived from the
// fee, so fee + remainder never exceeds the amount.
func SplitFee(amount float64) (fee, remainder float64) {
	total := decimal.NewFromFloat(amount)
	f := total.Mul(ProtocolFeeRate).RoundDown(BaseUnitDecimals)
	return f.InexactFloat64(), total.Sub(f).InexactFloat64()
}

// Excess returns how far balance exceeds reserve, never negative
func Excess(balance, reserve float64) float64 {
	d := decimal.NewFromFloat(balance).Sub(decimal.NewFromFloat(reserve))
	if !d.IsPositive() {
		return 0
	}
	return d.RoundDown(BaseUnitDecimals).InexactFloat64()
}

// Shortfall returns how much is missing for balance to reach reserve, never negative
func Shortfall(balance, reserve float64) float64 {
	return Excess(reserve, balance)
}

// DivideEvenly splits amount into n equal parts at base-unit precision
func DivideEvenly(amount float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return decimal.NewFromFloat(amount).DivRound(decimal.NewFromInt(int64(n)), BaseUnitDecimals+4).
		RoundDown(BaseUnitDecimals).InexactFloat64()
}

// NormalizeTicker trims and upper-cases a token ticker
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// MaskAddress masks a wallet address for logging (first 10 and last 4 characters)
func MaskAddress(address string) string {
	if len(address) > 16 {
		return address[:10] + "..." + address[len(address)-4:]
	}
	return address
}
