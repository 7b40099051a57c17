package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSelfInverse(t *testing.T) {
	t.Parallel()
	for x := 0; x <= 0xffff; x++ {
		if Decode(Decode(x)) != x {
			t.Fatalf("Decode(Decode(%d)) != %d", x, x)
		}
		if Decode(x) == x {
			t.Fatalf("Decode(%d) returned input unchanged", x)
		}
	}
}

func TestDecodeKnownValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, Decode(170))
	assert.Equal(t, 5, Decode(175))
	assert.Equal(t, 170, Decode(0))
	assert.Equal(t, 2001, Decode(Encode(2001)))
}
