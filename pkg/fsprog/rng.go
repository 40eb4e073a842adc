package fsprog

import "go.uber.org/zap"

const (
	lcgA    uint64 = 0x5DEECE66D
	lcgC    uint64 = 0xB
	lcgMask uint64 = (1 << 48) - 1
)

// rng is the srand48/lrand48 recurrence, so a seed reproduces the same
// program on every platform.
type rng struct {
	state uint64
	pos   uint64
}

func newRNG(seed uint64) *rng {
	return &rng{state: ((seed << 16) + 0x330E) & lcgMask}
}

func (r *rng) next31() uint32 {
	r.state = (lcgA*r.state + lcgC) & lcgMask
	r.pos++
	return uint32(r.state >> 17)
}

func (r *rng) upto(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	x := r.next31() % n
	if ce := logger.Check(zap.DebugLevel, "rng upto"); ce != nil {
		ce.Write(zap.Uint64("pos", r.pos), zap.Uint32("n", n), zap.Uint32("x", x))
	}
	return x
}

func (r *rng) flipcoin(p uint32) bool {
	if p > 100 {
		p = 100
	}
	ok := r.next31()%100 < p
	if ce := logger.Check(zap.DebugLevel, "rng flipcoin"); ce != nil {
		ce.Write(zap.Uint64("pos", r.pos), zap.Uint32("p", p), zap.Bool("ok", ok))
	}
	return ok
}
