package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {
	// sha256("hello")
	assert.Equal(t, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", Checksum([]byte("hello")))
	// sha256("")
	assert.Equal(t, "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", Checksum(nil))
}

func TestChecksum_Deterministic(t *testing.T) {
	data := []byte("the quick brown fox")
	first := Checksum(data)
	second := Checksum(append([]byte(nil), data...))

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToUpper(first), first)

	changed := append([]byte(nil), data...)
	changed[0] ^= 0x01
	assert.NotEqual(t, first, Checksum(changed))
}
