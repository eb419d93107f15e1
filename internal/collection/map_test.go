package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncMap_DeleteIf(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("a", 1)
	assert.False(t, m.DeleteIf("a", func(v int) bool { return v == 2 }))
	assert.True(t, m.DeleteIf("a", func(v int) bool { return v == 1 }))
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.False(t, m.DeleteIf("missing", func(int) bool { return true }))
}

func TestSyncMap_RangeAllowsMutation(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("a", 1)
	m.Put("b", 2)
	m.Range(func(key string, value int) bool {
		m.Delete(key)
		return true
	})
	assert.Equal(t, 0, m.Len())
}

func TestSyncMap_Swap(t *testing.T) {
	m := NewSyncMap[string, int]()
	_, replaced := m.Swap("a", 1)
	assert.False(t, replaced)
	prev, replaced := m.Swap("a", 2)
	assert.True(t, replaced)
	assert.Equal(t, 1, prev)
	assert.ElementsMatch(t, []int{2}, m.Values())
}
