package gateway

import "sync"

// serializer runs tasks for the same key one at a time, in submission order,
// while tasks for different keys run concurrently. A key holds a goroutine
// only while it has pending work.
type serializer struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

func newSerializer() *serializer {
	return &serializer{pending: make(map[string][]func())}
}

// Submit queues task behind any task already running for key.
func (s *serializer) Submit(key string, task func()) {
	s.wg.Add(1)

	s.mu.Lock()
	if queue, running := s.pending[key]; running {
		s.pending[key] = append(queue, task)
		s.mu.Unlock()
		return
	}
	s.pending[key] = nil
	s.mu.Unlock()

	go s.drain(key, task)
}

func (s *serializer) drain(key string, task func()) {
	for task != nil {
		task()

		s.mu.Lock()
		var next func()
		if queue := s.pending[key]; len(queue) == 0 {
			delete(s.pending, key)
		} else {
			next = queue[0]
			queue[0] = nil
			s.pending[key] = queue[1:]
		}
		s.mu.Unlock()

		s.wg.Done()
		task = next
	}
}

// Wait blocks until every submitted task has finished.
func (s *serializer) Wait() {
	s.wg.Wait()
}
