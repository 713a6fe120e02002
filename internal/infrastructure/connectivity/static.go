package connectivity

import (
	"sync"

	portsout "karte/internal/application/ports/out"
)

// Static is an observer whose state is pushed by the host.
type Static struct {
	mu        sync.Mutex
	online    bool
	listeners listenerSet
}

var _ portsout.ConnectivityObserver = (*Static)(nil)

func NewStatic(online bool) *Static {
	return &Static{online: online}
}

func (s *Static) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Static) Subscribe(listener func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.listeners.add(listener)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners.remove(id)
	}
}

// SetOnline notifies listeners only on an actual change.
func (s *Static) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	listeners := s.listeners.snapshot()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(online)
	}
}
