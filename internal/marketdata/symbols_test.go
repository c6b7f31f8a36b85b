package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymbolList(t *testing.T) {
	got, err := parseSymbolList(" eurusd, BTCUSD ,,EURUSD,us30 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "BTCUSD", "US30"}, got)

	_, err = parseSymbolList(" , ")
	assert.ErrorIs(t, err, errNoSymbols)

	_, err = parseSymbolList("EUR USD")
	assert.Error(t, err)

	_, err = parseSymbolList("ABCDEFGHIJKLMNOPQRSTU")
	assert.Error(t, err)
}
