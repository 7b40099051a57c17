package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()
	host, port, err := ParseAddress("192.168.1.15:8080")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.15", host)
	assert.Equal(t, 8080, port)

	host, port, err = ParseAddress(" sensor.local:23 ")
	require.NoError(t, err)
	assert.Equal(t, "sensor.local", host)
	assert.Equal(t, 23, port)
}

func TestParseAddressRejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"badinput",
		"1.2.3.4:notaport",
		"1.2.3.4:80:90",
		":8080",
		"1.2.3.4:0",
		"1.2.3.4:70000",
		"",
	} {
		_, _, err := ParseAddress(in)
		assert.ErrorIs(t, err, ErrInvalidAddress, in)
	}
}
