package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Unique([]string{"a", "", "b", "a"}))
	assert.Empty(t, Unique(nil))
}

func TestRemove(t *testing.T) {
	src := []string{"a", "b", "a"}
	assert.Equal(t, []string{"b"}, Remove(src, "a"))
	assert.Equal(t, []string{"a", "b", "a"}, src)
}

func TestSafeKey(t *testing.T) {
	for _, id := range []string{"u1", "66f1c0a2e4b0", "a$b", "林"} {
		assert.True(t, SafeKey(id), id)
	}
	for _, id := range []string{"", "a.b", ".", "$set", "$"} {
		assert.False(t, SafeKey(id), id)
	}
}
