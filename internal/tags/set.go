package tags

import "github.com/RoaringBitmap/roaring/v2"

// indexSet is an insertion-ordered set of row indices.
type indexSet struct {
	order   []int
	members *roaring.Bitmap
}

func newIndexSet(indices []int) *indexSet {
	s := &indexSet{order: make([]int, 0, len(indices)), members: roaring.New()}
	for _, i := range indices {
		s.add(i)
	}
	return s
}

func (s *indexSet) contains(i int) bool {
	return s.members.Contains(uint32(i))
}

// add appends i and reports whether it was absent.
func (s *indexSet) add(i int) bool {
	if !s.members.CheckedAdd(uint32(i)) {
		return false
	}
	s.order = append(s.order, i)
	return true
}

// remove deletes i and returns its former position, or -1 when absent.
func (s *indexSet) remove(i int) int {
	if !s.members.CheckedRemove(uint32(i)) {
		return -1
	}
	for pos, v := range s.order {
		if v == i {
			s.order = append(s.order[:pos], s.order[pos+1:]...)
			return pos
		}
	}
	return -1
}

// insertAt puts i back at pos; it undoes a remove.
func (s *indexSet) insertAt(pos, i int) {
	s.members.Add(uint32(i))
	s.order = append(s.order, 0)
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = i
}

// dropLast undoes an add.
func (s *indexSet) dropLast() {
	last := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	s.members.Remove(uint32(last))
}

func (s *indexSet) slice() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}
