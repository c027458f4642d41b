package resolver

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_RightPadded(t *testing.T) {
	key, err := Key("FNFTCollectionFactory")
	require.NoError(t, err)
	// formatBytes32String("FNFTCollectionFactory")
	want := common.FromHex("0x464e4654436f6c6c656374696f6e466163746f72790000000000000000000000")
	assert.Equal(t, want, key[:])
}

func TestKey_Deterministic(t *testing.T) {
	a, err := Key("MultiProxyController")
	require.NoError(t, err)
	b, err := Key("MultiProxyController")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Key("MultiProxyControllers")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestKey_Limits(t *testing.T) {
	_, err := Key(strings.Repeat("a", 31))
	require.NoError(t, err)

	for _, name := range []string{"", strings.Repeat("a", 32), "\xff\xfe"} {
		_, err := Key(name)
		assert.True(t, IsKind(err, KindInvalidName), "name %q: %v", name, err)
	}
}

func TestKey_MultibyteCountsBytes(t *testing.T) {
	// 11 three-byte runes: 33 bytes.
	_, err := Key(strings.Repeat("金", 11))
	assert.True(t, IsKind(err, KindInvalidName))

	key, err := Key("金庫")
	require.NoError(t, err)
	assert.Equal(t, []byte("金庫"), key[:6])
	assert.Equal(t, make([]byte, 26), key[6:])
}
