package boundedcache

import "sync"

// dataShard is one of Cache.shardMask+1 independent key->node lookup
// units, grounded in the teacher's Shard.cacheMap (bicache.go/methods.go):
// a sync.RWMutex-guarded map, routed to by hash. Unlike the teacher, a
// dataShard holds *only* the map -- no policy state (deques, sketch,
// region maxima) lives here; that is process-wide and guarded by the
// Cache's eviction mutex instead (spec §2.1, §3, §5).
type dataShard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*Node[K, V]
}

func newDataShard[K comparable, V any](initialCap int) *dataShard[K, V] {
	if initialCap < 0 {
		initialCap = 0
	}
	return &dataShard[K, V]{m: make(map[K]*Node[K, V], initialCap)}
}

func (s *dataShard[K, V]) get(k K) (*Node[K, V], bool) {
	s.mu.RLock()
	n, ok := s.m[k]
	s.mu.RUnlock()
	return n, ok
}

// putIfAbsent installs n if k is absent (and ALIVE), returning the node
// now present and whether it was n itself that got installed.
func (s *dataShard[K, V]) putIfAbsent(k K, n *Node[K, V]) (*Node[K, V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[k]; ok {
		return existing, false
	}
	s.m[k] = n
	return n, true
}

// deleteIfSame removes k only if its currently mapped node is n,
// returning whether it removed it.
func (s *dataShard[K, V]) deleteIfSame(k K, n *Node[K, V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[k]; ok && existing == n {
		delete(s.m, k)
		return true
	}
	return false
}

func (s *dataShard[K, V]) len() int {
	s.mu.RLock()
	n := len(s.m)
	s.mu.RUnlock()
	return n
}

func (s *dataShard[K, V]) forEach(f func(*Node[K, V])) {
	s.mu.RLock()
	nodes := make([]*Node[K, V], 0, len(s.m))
	for _, n := range s.m {
		nodes = append(nodes, n)
	}
	s.mu.RUnlock()
	for _, n := range nodes {
		f(n)
	}
}
