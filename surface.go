package carousel

import "sync"

// SurfaceView is read-only access to the export surface.
type SurfaceView interface {
	// Len returns the number of mounted slots.
	Len() int
	// Node returns a copy of the export tree mounted at index.
	Node(index int) (*Tree, error)
}

// Surface is a fixed-size arena of full-resolution export trees addressed by
// slide index. Only the Renderer mounts into it.
type Surface struct {
	mu    sync.RWMutex
	nodes []*Tree
}

func (s *Surface) mount(nodes []*Tree) {
	s.mu.Lock()
	s.nodes = nodes
	s.mu.Unlock()
}

// Len returns the number of mounted slots.
func (s *Surface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Node returns a copy of the tree at index so readers cannot mutate the arena.
func (s *Surface) Node(index int) (*Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.nodes) {
		return nil, ErrSlideIndex
	}
	n := s.nodes[index]
	if n == nil {
		return nil, ErrNotMounted
	}
	return n.clone(), nil
}

func (t *Tree) clone() *Tree {
	c := *t
	c.Layers = make([]Layer, len(t.Layers))
	for i, l := range t.Layers {
		l.Lines = append([]TextLine(nil), l.Lines...)
		c.Layers[i] = l
	}
	return &c
}
