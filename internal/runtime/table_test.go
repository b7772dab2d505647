package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable()
	key := FromObj(&StringObj{Chars: "x", Hash: fnv1a("x")})

	isNew := tbl.Set(key, Number(1))
	assert.True(t, isNew)

	v, ok := tbl.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1.0, v.AsNumber())

	isNew = tbl.Set(key, Number(2))
	assert.False(t, isNew, "overwriting an existing key is not a new insert")

	ok = tbl.Delete(key)
	assert.True(t, ok)
	_, ok = tbl.Get(key)
	assert.False(t, ok)
}

func TestTableGrowsAndSurvivesRehash(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 200; i++ {
		s := &StringObj{Chars: string(rune('a' + i%26)), Hash: fnv1a(string(rune('a' + i%26)))}
		tbl.Set(FromObj(s), Number(float64(i)))
	}
	// Every distinct single-letter key should still resolve after repeated
	// growth/rehash cycles.
	for c := 'a'; c <= 'z'; c++ {
		s := &StringObj{Chars: string(c), Hash: fnv1a(string(c))}
		_, ok := tbl.Get(FromObj(s))
		assert.True(t, ok, "key %q should survive rehashing", string(c))
	}
}

func TestFindStringMatchesByContent(t *testing.T) {
	tbl := NewTable()
	s := &StringObj{Chars: "hello", Hash: fnv1a("hello")}
	tbl.Set(FromObj(s), Bool(true))

	found := tbl.FindString("hello", fnv1a("hello"))
	require.NotNil(t, found)
	assert.Same(t, s, found)

	assert.Nil(t, tbl.FindString("goodbye", fnv1a("goodbye")))
}

func TestRemoveWhiteDeletesUnmarkedKeys(t *testing.T) {
	tbl := NewTable()
	marked := &StringObj{Chars: "marked", Hash: fnv1a("marked")}
	marked.objHeader.marked = true
	unmarked := &StringObj{Chars: "unmarked", Hash: fnv1a("unmarked")}

	tbl.Set(FromObj(marked), Bool(true))
	tbl.Set(FromObj(unmarked), Bool(true))

	tbl.RemoveWhite()

	_, ok := tbl.Get(FromObj(marked))
	assert.True(t, ok)
	_, ok = tbl.Get(FromObj(unmarked))
	assert.False(t, ok)
}

func TestDeleteTombstoneKeepsProbeChainIntact(t *testing.T) {
	tbl := NewTable()
	// Build three keys and delete the middle one; the third must still be
	// reachable even though its slot may have probed past the tombstone.
	keys := make([]*StringObj, 3)
	for i := range keys {
		c := string(rune('a' + i))
		keys[i] = &StringObj{Chars: c, Hash: fnv1a(c)}
		tbl.Set(FromObj(keys[i]), Number(float64(i)))
	}
	tbl.Delete(FromObj(keys[1]))

	_, ok := tbl.Get(FromObj(keys[0]))
	assert.True(t, ok)
	_, ok = tbl.Get(FromObj(keys[2]))
	assert.True(t, ok)
}
