package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexSet(t *testing.T) {
	s := newIndexSet([]int{3, 1, 3, 2})
	assert.Equal(t, []int{3, 1, 2}, s.slice(), "duplicates collapse to first occurrence")

	assert.False(t, s.add(1))
	assert.True(t, s.add(9))
	assert.True(t, s.contains(9))

	pos := s.remove(1)
	assert.Equal(t, 1, pos)
	assert.Equal(t, -1, s.remove(1))
	s.insertAt(pos, 1)
	assert.Equal(t, []int{3, 1, 2, 9}, s.slice())

	s.dropLast()
	assert.False(t, s.contains(9))
	assert.Equal(t, []int{3, 1, 2}, s.slice())
}
