package buffer

// stagingSize bounds the small scratch buffer Builder batches writes into
// before flushing them as a single Data.Write call.
const stagingSize = 256

// Builder batches small, frequent pushes (a byte here, a field there — the
// shape BGP's encoder produces) into a staging buffer and flushes them into
// the target Data in one copy, instead of growing the chunk list one field
// at a time.
type Builder struct {
	out     *Data
	staging [stagingSize]byte
	n       int
}

// NewBuilder creates a Builder that appends into out.
func NewBuilder(out *Data) *Builder {
	return &Builder{out: out}
}

// Push stages src for a later flush, flushing first if src wouldn't fit.
func (b *Builder) Push(src []byte) {
	for len(src) > 0 {
		room := stagingSize - b.n
		if room == 0 {
			b.Flush()
			room = stagingSize
		}
		n := len(src)
		if n > room {
			n = room
		}
		copy(b.staging[b.n:b.n+n], src[:n])
		b.n += n
		src = src[n:]
	}
}

// PushByte stages a single byte.
func (b *Builder) PushByte(v byte) {
	if b.n == stagingSize {
		b.Flush()
	}
	b.staging[b.n] = v
	b.n++
}

// PushData transfers src's chunks directly into the target Data, flushing
// any staged bytes first so ordering is preserved.
func (b *Builder) PushData(src *Data) {
	b.Flush()
	b.out.Push(src)
}

// Flush writes any staged bytes into the target Data.
func (b *Builder) Flush() {
	if b.n == 0 {
		return
	}
	b.out.Write(b.staging[:b.n])
	b.n = 0
}
