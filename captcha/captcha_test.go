package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	a := Calculate("WDC WD40EFRX-68N32N0-WD-WCC7K1234567")
	b := Calculate("WDC WD40EFRX-68N32N0-WD-WCC7K1234567")
	assert.Equal(t, a, b, "the token is deterministic per identity")
	assert.Len(t, a, TokenLen)

	c := Calculate("WDC WD40EFRX-68N32N0-WD-WCC7K7654321")
	assert.NotEqual(t, a, c, "different devices get different tokens")
}

func TestVerify(t *testing.T) {
	id := "sda-4000787030016"
	token := Calculate(id)
	assert.True(t, Verify(id, token))
	assert.False(t, Verify(id, "00000000"))
	assert.False(t, Verify(id, ""), "an empty token never verifies")
}
