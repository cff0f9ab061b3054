package buffer

// Producer is a single-goroutine-affine allocator for chunks. Every Data is
// associated with exactly one Producer; a Data must never be mutated from a
// goroutine other than the one that owns its Producer. There is no locking
// here — callers are responsible for the affinity the spec requires.
type Producer struct {
	free     []*chunk
	maxFree  int
	alive    int64 // chunks currently referenced by at least one Data
	released int64
}

// DefaultMaxFreeChunks bounds how many released chunks a Producer keeps
// around before letting the garbage collector reclaim them outright.
const DefaultMaxFreeChunks = 256

// NewProducer creates a Producer with the default free-list cap.
func NewProducer() *Producer {
	return &Producer{maxFree: DefaultMaxFreeChunks}
}

// alloc returns a fresh or recycled chunk with filled == 0.
func (p *Producer) alloc() *chunk {
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		c.filled = 0
		c.refs = 0
		p.alive++
		return c
	}
	p.alive++
	return &chunk{}
}

func (p *Producer) recycle(c *chunk) {
	p.alive--
	p.released++
	if len(p.free) >= p.maxFree {
		return
	}
	p.free = append(p.free, c)
}

// Alive reports the number of chunks this Producer currently has checked
// out to live Data views. Exposed for the metrics layer.
func (p *Producer) Alive() int64 { return p.alive }

// New creates an empty Data owned by this Producer.
func (p *Producer) New() *Data {
	return &Data{producer: p}
}

// NewFromBytes creates a Data owned by this Producer, copying src into
// freshly allocated chunks.
func (p *Producer) NewFromBytes(src []byte) *Data {
	d := p.New()
	d.Write(src)
	return d
}
