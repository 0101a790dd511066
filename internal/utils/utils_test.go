package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBaseUnits(t *testing.T) {
	v, err := FromBaseUnits("250000000", BaseUnitDecimals)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = FromBaseUnits(" 1 ", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = FromBaseUnits("abc", BaseUnitDecimals)
	assert.Error(t, err)
}

func TestToBaseUnitsTruncates(t *testing.T) {
	assert.Equal(t, "250000000", ToBaseUnits(2.5, BaseUnitDecimals))
	assert.Equal(t, "1", ToBaseUnits(0.000000019, BaseUnitDecimals))
}

func TestSplitFee(t *testing.T) {
	fee, remainder := SplitFee(1000)
	assert.Equal(t, 50.0, fee)
	assert.Equal(t, 950.0, remainder)

	fee, remainder = SplitFee(0.00000019)
	assert.Equal(t, 0.0, fee)
	assert.Equal(t, 0.00000019, remainder)

	fee, remainder = SplitFee(123.45678901)
	assert.Equal(t, 6.17283945, fee)
	assert.InDelta(t, 123.45678901, fee+remainder, 1e-12)
}

func TestExcessAndShortfall(t *testing.T) {
	assert.Equal(t, 5.0, Excess(20, 15))
	assert.Equal(t, 0.0, Excess(10, 15))
	assert.Equal(t, 5.0, Shortfall(10, 15))
	assert.Equal(t, 0.0, Shortfall(15, 15))
}

func TestDivideEvenly(t *testing.T) {
	assert.Equal(t, 33.33333333, DivideEvenly(100, 3))
	assert.Equal(t, 50.0, DivideEvenly(100, 2))
	assert.Equal(t, 0.0, DivideEvenly(100, 0))
}

func TestNormalizeTickerAndMaskAddress(t *testing.T) {
	assert.Equal(t, "NACHO", NormalizeTicker("  nacho "))
	assert.Equal(t, "kaspa:qpzr...wxyz", MaskAddress("kaspa:qpzrabcdefghijklmnopwxyz"))
	assert.Equal(t, "short", MaskAddress("short"))
}
