package region

import "github.com/geoyee/regiontiles/internal/model"

// Set is an insertion-ordered name -> box mapping. Putting an existing
// name replaces its box in place, so the last write wins but the original
// position is kept.
type Set struct {
	index   map[string]int
	regions []model.Region
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

func (s *Set) Put(name string, box model.BoundingBox) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.regions[i].Box = box
		return
	}
	s.index[name] = len(s.regions)
	s.regions = append(s.regions, model.Region{Name: name, Box: box})
}

func (s *Set) Get(name string) (model.BoundingBox, bool) {
	i, ok := s.index[name]
	if !ok {
		return model.BoundingBox{}, false
	}
	return s.regions[i].Box, true
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.regions)
}

// All returns the regions in insertion order. The slice must not be modified.
func (s *Set) All() []model.Region {
	if s == nil {
		return nil
	}
	return s.regions
}
