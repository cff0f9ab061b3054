package buffer

// Data is a view over a doubly-linked list of shared, immutable chunks. It
// supports O(1) Shift/Pop by slicing off list nodes rather than copying
// bytes; mutation only ever appends into the unshared tail.
type Data struct {
	producer *Producer
	head     *node
	tail     *node
	size     int
}

// Producer returns the Producer that owns this Data's chunk allocations.
func (d *Data) Producer() *Producer { return d.producer }

// Size returns the number of bytes currently held.
func (d *Data) Size() int { return d.size }

// Empty reports whether the Data holds zero bytes.
func (d *Data) Empty() bool { return d.size == 0 }

// Clear releases every chunk reference and leaves the Data empty. It does
// not change the Data's Producer.
func (d *Data) Clear() {
	for n := d.head; n != nil; {
		next := n.next
		d.releaseChunk(n.c)
		n = next
	}
	d.head, d.tail, d.size = nil, nil, 0
}

func (d *Data) releaseChunk(c *chunk) {
	c.refs--
	if c.refs == 0 {
		d.producer.recycle(c)
	}
}

// appendNode links n onto the tail of the list.
func (d *Data) appendNode(n *node) {
	n.prev = d.tail
	n.next = nil
	if d.tail != nil {
		d.tail.next = n
	} else {
		d.head = n
	}
	d.tail = n
	d.size += n.length
}

// Write appends raw bytes, copying them into freshly allocated (or
// partially filled, unshared) chunks owned by this Data's Producer.
func (d *Data) Write(src []byte) {
	for len(src) > 0 {
		var c *chunk
		var base int
		if d.tail != nil && d.tail.c.refs == 1 && d.tail.offset+d.tail.length == d.tail.c.filled && d.tail.c.filled < ChunkSize {
			// Unshared tail chunk with room left: extend in place.
			c = d.tail.c
			base = d.tail.c.filled
		} else {
			c = d.producer.alloc()
			c.refs = 1
			base = 0
		}

		room := ChunkSize - base
		n := len(src)
		if n > room {
			n = room
		}
		copy(c.buf[base:base+n], src[:n])
		c.filled = base + n

		if d.tail != nil && d.tail.c == c {
			d.tail.length += n
			d.size += n
		} else {
			d.appendNode(&node{c: c, offset: base, length: n})
		}
		src = src[n:]
	}
}

// Push appends src's entire contents to d by transferring ownership of
// src's chunk list; src becomes empty. If src and d have different
// Producers, the bytes are copied into d's Producer instead (cross-thread
// hand-off per §5).
func (d *Data) Push(src *Data) {
	if src == nil || src.size == 0 {
		return
	}
	if src.producer != d.producer {
		for n := src.head; n != nil; n = n.next {
			d.Write(n.bytes())
		}
		src.Clear()
		return
	}
	// Relink src's nodes onto d's tail. Each node is one reference to its
	// chunk; moving the node (not copying it) carries that reference along
	// unchanged, so no retain/release is needed here.
	for n := src.head; n != nil; {
		next := n.next
		n.prev, n.next = nil, nil
		d.appendNode(n)
		n = next
	}
	src.head, src.tail, src.size = nil, nil, 0
}

// PushBytes is a convenience wrapper around Write, matching the spec's
// "append bytes" push overload.
func (d *Data) PushBytes(b []byte) { d.Write(b) }

// Shift removes and returns a new Data carrying the first min(n, Size())
// bytes. Remaining bytes stay in d. O(1) plus O(chunks-touched).
func (d *Data) Shift(n int) *Data {
	if n > d.size {
		n = d.size
	}
	out := &Data{producer: d.producer}
	if n <= 0 {
		return out
	}

	remaining := n
	for remaining > 0 {
		cur := d.head
		if cur.length <= remaining {
			// Whole node moves to out.
			d.head = cur.next
			if d.head != nil {
				d.head.prev = nil
			} else {
				d.tail = nil
			}
			cur.next, cur.prev = nil, nil
			out.appendNode(cur)
			remaining -= cur.length
			d.size -= cur.length
		} else {
			// Split: out gets a prefix view, d keeps a suffix view of the
			// same shared chunk (no bytes copied).
			cur.c.retain()
			head := &node{c: cur.c, offset: cur.offset, length: remaining}
			out.appendNode(head)

			cur.offset += remaining
			cur.length -= remaining
			d.size -= remaining
			remaining = 0
		}
	}
	return out
}

// Pop removes and discards the last min(n, Size()) bytes from the tail.
func (d *Data) Pop(n int) {
	if n > d.size {
		n = d.size
	}
	remaining := n
	for remaining > 0 {
		cur := d.tail
		if cur.length <= remaining {
			d.tail = cur.prev
			if d.tail != nil {
				d.tail.next = nil
			} else {
				d.head = nil
			}
			remaining -= cur.length
			d.size -= cur.length
			d.releaseChunk(cur.c)
		} else {
			cur.length -= remaining
			d.size -= remaining
			remaining = 0
		}
	}
}

// Bytes materializes the Data's contents into a single contiguous slice.
// Intended for small payloads (headers, diagnostics) — large bodies should
// use Reader instead to avoid the copy.
func (d *Data) Bytes() []byte {
	out := make([]byte, 0, d.size)
	for n := d.head; n != nil; n = n.next {
		out = append(out, n.bytes()...)
	}
	return out
}
