package measurement

// Buffer is an append-only, insertion-ordered sequence of points. It is
// created fresh per flush cycle by a source, handed once to the transform
// task, and after broadcasting every output task receives the same *Buffer
// pointer: no per-output copy is made, so a change an output makes to the
// buffer is visible to the other outputs.
type Buffer struct {
	points []Point
}

// NewBuffer allocates a buffer with a capacity hint, typically the number of
// points observed in the previous flush cycle for the same source.
func NewBuffer(capacityHint int) *Buffer {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Buffer{points: make([]Point, 0, capacityHint)}
}

// Push appends a point, preserving insertion order.
func (b *Buffer) Push(p Point) {
	b.points = append(b.points, p)
}

// Len returns the number of points currently held.
func (b *Buffer) Len() int {
	return len(b.points)
}

// Reserve grows the buffer's backing capacity without changing its length,
// used by sources ahead of a reconfiguration that implies more points per
// flush.
func (b *Buffer) Reserve(additional int) {
	if additional <= 0 {
		return
	}
	if cap(b.points)-len(b.points) >= additional {
		return
	}
	grown := make([]Point, len(b.points), len(b.points)+additional)
	copy(grown, b.points)
	b.points = grown
}

// At returns the point at index i.
func (b *Buffer) At(i int) Point {
	return b.points[i]
}

// Set overwrites the point at index i in place. Used by transforms, which
// may change Value and Attributes but must not change buffer length or
// order.
func (b *Buffer) Set(i int, p Point) {
	b.points[i] = p
}

// ForEach iterates points in insertion order.
func (b *Buffer) ForEach(fn func(Point)) {
	for _, p := range b.points {
		fn(p)
	}
}

// Points returns the underlying slice. Callers must not retain it across a
// buffer reuse.
func (b *Buffer) Points() []Point {
	return b.points
}
