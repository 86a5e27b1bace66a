package pool

import (
	"sync/atomic"
)

// availability of a replica
type availability uint32

const (
	available availability = iota
	unavailable
)

func (s *availability) set(news availability) {
	atomic.StoreUint32((*uint32)(s), uint32(news))
}

func (s *availability) cas(olds, news availability) bool {
	return atomic.CompareAndSwapUint32((*uint32)(s), uint32(olds), uint32(news))
}

func (s *availability) get() availability {
	return availability(atomic.LoadUint32((*uint32)(s)))
}
