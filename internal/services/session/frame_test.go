package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line  string
		kind  frameKind
		value int
	}{
		{line: "GAS:170", kind: frameGas, value: 0},
		{line: "GAS:175", kind: frameGas, value: 5},
		{line: "GAS: 175 \r", kind: frameGas, value: 5},
		{line: "ALERTA:HUMO", kind: frameSmoke},
		{line: "ALERTA:RUIDO\r", kind: frameNoise},
		{line: "ALERTA:FUEGO", kind: frameUnknown},
		{line: "", kind: frameUnknown},
		{line: "gas:170", kind: frameUnknown},
	}
	for _, tt := range tests {
		f, err := parseFrame(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.kind, f.kind, tt.line)
		assert.Equal(t, tt.value, f.value, tt.line)
	}
}

func TestParseFrameMalformedGas(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"GAS:", "GAS:abc", "GAS:-1", "GAS:1.5"} {
		_, err := parseFrame(line)
		var perr *ProtocolError
		assert.ErrorAs(t, err, &perr, line)
	}
}
