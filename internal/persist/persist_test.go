package persist

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_IsolatesKeys(t *testing.T) {
	mem := NewMemory()
	cart := Namespace(mem, "cart")
	wish := Namespace(mem, "wishlist:")

	require.NoError(t, cart.Set("handle", "gid://cart/1"))
	require.NoError(t, wish.Set("handle", "other"))

	v, ok := cart.Get("handle")
	require.True(t, ok)
	assert.Equal(t, "gid://cart/1", v)

	v, ok = wish.Get("handle")
	require.True(t, ok)
	assert.Equal(t, "other", v)

	keys := mem.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"cart:handle", "wishlist:handle"}, keys)

	require.NoError(t, cart.Remove("handle"))
	_, ok = cart.Get("handle")
	assert.False(t, ok)
	_, ok = wish.Get("handle")
	assert.True(t, ok, "removing in one namespace must not touch another")
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemory()

	var out []string
	found, err := GetJSON(s, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(s, "ids", []string{"a", "b"}))
	found, err = GetJSON(s, "ids", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, out)

	require.NoError(t, s.Set("bad", "{not json"))
	_, err = GetJSON(s, "bad", &out)
	assert.Error(t, err)
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set("cart:handle", "gid://cart/42"))
	require.NoError(t, f.Set("identity:token", "tok"))
	require.NoError(t, f.Remove("identity:token"))
	require.NoError(t, f.Remove("never-set"))

	reopened, err := OpenFile(path)
	require.NoError(t, err)

	v, ok := reopened.Get("cart:handle")
	require.True(t, ok)
	assert.Equal(t, "gid://cart/42", v)

	_, ok = reopened.Get("identity:token")
	assert.False(t, ok)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestOpenFile_Errors(t *testing.T) {
	_, err := OpenFile("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err = OpenFile(path)
	assert.Error(t, err)
}
