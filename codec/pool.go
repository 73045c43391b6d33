package codec

import (
	"sync"

	"github.com/wippyai/picklebridge/wire"
)

const (
	// Sinks that grew past this are dropped instead of pooled
	poolMaxCap = 64 << 10
)

type sinkPool struct {
	pool     sync.Pool
	capacity int
	limit    int
}

func newSinkPool(capacity, limit int) *sinkPool {
	p := &sinkPool{capacity: capacity, limit: limit}
	p.pool.New = func() any {
		return wire.NewSinkLimit(p.capacity, p.limit)
	}
	return p
}

func (p *sinkPool) get() *wire.Sink {
	return p.pool.Get().(*wire.Sink)
}

func (p *sinkPool) put(s *wire.Sink) {
	if s == nil || s.Cap() > poolMaxCap {
		return // reject oversized
	}
	s.Reset()
	p.pool.Put(s)
}
