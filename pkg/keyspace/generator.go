package keyspace

// Increment is the additive step of the key sequence. It is odd, so it is
// coprime with 2^32 and the sequence visits every 32-bit value exactly once
// before repeating.
const Increment uint32 = 88099901

// SpaceSize is the number of distinct keys (and logical indices) in the full
// key space.
const SpaceSize uint64 = 1 << 32

// weyl is an additive recurrence x <- (x + step) mod (mask+1) over a
// power-of-two domain. Generator uses it with the full 32-bit mask; tests use
// reduced masks to check the period property exhaustively.
type weyl struct {
	current uint64
	step    uint64
	mask    uint64
}

func (w *weyl) next() uint64 {
	w.current = (w.current + w.step) & w.mask
	return w.current
}

// at returns the value produced by the (index+1)-th call to next when the
// sequence starts from origin.
func (w *weyl) at(origin, index uint64) uint64 {
	return (origin + w.step*(index+1)) & w.mask
}

// Generator produces a deterministic permutation of the 32-bit key space from
// a seed. The key returned for logical index i is seed + Increment*(i+1)
// (mod 2^32), so any two implementations agree on every key.
//
// A Generator is not safe for concurrent use.
type Generator struct {
	seq  weyl
	seed uint32
}

// NewGenerator returns a generator positioned before logical index 0.
func NewGenerator(seed uint32) *Generator {
	g := &Generator{}
	g.Reseed(seed)
	return g
}

// Next advances the sequence and returns the new key.
func (g *Generator) Next() uint32 {
	return uint32(g.seq.next())
}

// Reseed resets the generator to the start of the sequence for seed.
func (g *Generator) Reseed(seed uint32) {
	g.seed = seed
	g.seq = weyl{current: uint64(seed), step: uint64(Increment), mask: SpaceSize - 1}
}

// Seed returns the seed currently in effect.
func (g *Generator) Seed() uint32 {
	return g.seed
}

// Seek positions the generator so the next call to Next returns the key for
// the given logical index. Seek(0) is equivalent to Reseed(Seed()).
func (g *Generator) Seek(index uint64) {
	if index == 0 {
		g.seq.current = uint64(g.seed)
		return
	}
	g.seq.current = g.seq.at(uint64(g.seed), index-1)
}

// KeyAt returns the key for a logical index without moving the generator.
func (g *Generator) KeyAt(index uint64) uint32 {
	return uint32(g.seq.at(uint64(g.seed), index))
}
