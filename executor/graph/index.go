package graph

import "github.com/isgasho/fantoch/id"

// VertexIndex maps a Dot to the in-progress Vertex tracking it.
type VertexIndex struct {
	entries map[id.Dot]*Vertex
}

// NewVertexIndex creates an empty index.
func NewVertexIndex() *VertexIndex {
	return &VertexIndex{entries: make(map[id.Dot]*Vertex)}
}

// Index adds vertex, reporting false if dot was already indexed (a caller
// bug: the same command should never be added twice).
func (vi *VertexIndex) Index(v *Vertex) bool {
	if _, ok := vi.entries[v.Dot]; ok {
		return false
	}
	vi.entries[v.Dot] = v
	return true
}

// Find returns the vertex for dot, or nil.
func (vi *VertexIndex) Find(dot id.Dot) *Vertex {
	return vi.entries[dot]
}

// Remove discards dot's vertex.
func (vi *VertexIndex) Remove(dot id.Dot) {
	delete(vi.entries, dot)
}

// Len reports how many vertices are still pending.
func (vi *VertexIndex) Len() int {
	return len(vi.entries)
}

// PendingIndex tracks, for each not-yet-available dependency dot, the set
// of dots that are blocked waiting for it.
type PendingIndex struct {
	entries map[id.Dot]map[id.Dot]struct{}
}

// NewPendingIndex creates an empty index.
func NewPendingIndex() *PendingIndex {
	return &PendingIndex{entries: make(map[id.Dot]map[id.Dot]struct{})}
}

// Index records that dot is waiting on depDot.
func (pi *PendingIndex) Index(depDot, dot id.Dot) {
	set, ok := pi.entries[depDot]
	if !ok {
		set = make(map[id.Dot]struct{})
		pi.entries[depDot] = set
	}
	set[dot] = struct{}{}
}

// Remove pops and returns every dot that was waiting on depDot.
func (pi *PendingIndex) Remove(depDot id.Dot) []id.Dot {
	set, ok := pi.entries[depDot]
	if !ok {
		return nil
	}
	delete(pi.entries, depDot)
	out := make([]id.Dot, 0, len(set))
	for dot := range set {
		out = append(out, dot)
	}
	return out
}
