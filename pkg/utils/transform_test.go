package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHex(t *testing.T) {
	assert.Equal(t, "0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7",
		NormalizeHex("0x049D36570D4e46f48e99674bd3fcc84644DdD6b96F7C741B1562B82f9e004dC7"))
	assert.Equal(t, "0x0", NormalizeHex("0x"))
	assert.Equal(t, "0xff", NormalizeHex("255"))
	assert.Equal(t, "not-a-felt", NormalizeHex(" Not-A-Felt "))
}

func TestParseFelt(t *testing.T) {
	n, ok := ParseFelt("0x10")
	require.True(t, ok)
	assert.Equal(t, int64(16), n.Int64())

	_, ok = ParseFelt("")
	assert.False(t, ok)

	_, ok = ParseFelt("0xzz")
	assert.False(t, ok)
}

func TestDedup(t *testing.T) {
	out := Dedup([]string{"http://a/", "http://a", "http://b"})
	assert.Equal(t, []string{"http://a", "http://b"}, out)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("AMMX_TEST_INT", "42")
	t.Setenv("AMMX_TEST_BAD_INT", "nope")
	t.Setenv("AMMX_TEST_BOOL", "true")
	t.Setenv("AMMX_TEST_DURATION", "3s")
	t.Setenv("AMMX_TEST_LIST", "a, b,,c")

	assert.Equal(t, 42, EnvInt("AMMX_TEST_INT", 1))
	assert.Equal(t, 7, EnvInt("AMMX_TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), EnvInt64("AMMX_TEST_INT", 1))
	assert.True(t, EnvBool("AMMX_TEST_BOOL", false))
	assert.Equal(t, "3s", EnvDuration("AMMX_TEST_DURATION", 0).String())
	assert.Equal(t, []string{"a", "b", "c"}, EnvList("AMMX_TEST_LIST", nil))
	assert.Equal(t, "fallback", Env("AMMX_TEST_MISSING", "fallback"))
}
