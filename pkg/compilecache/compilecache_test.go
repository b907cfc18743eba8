package compilecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_isDeterministicAndSensitiveToVariations(t *testing.T) {
	graphJSON := []byte(`{"Name":"g"}`)
	k1 := Key(graphJSON, []string{"c"})
	k2 := Key(graphJSON, []string{"c"})
	k3 := Key(graphJSON, []string{"asm"})

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestCache_putThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(dir)
	require.NoError(t, err)
	defer cache.Close()

	entry := Entry{CSource: []byte("int main(){}"), InputsSize: 4, OutputsSize: 2}
	key := Key([]byte(`{"Name":"g"}`), []string{"c"})

	require.NoError(t, cache.Put(key, entry))

	got, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.CSource, got.CSource)
	assert.Equal(t, entry.InputsSize, got.InputsSize)
}

func TestCache_getMissReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(dir)
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}
