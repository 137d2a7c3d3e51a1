// Package identity tracks which user, if any, a session currently acts for.
// The value is driven from outside (the auth gateway header); this package
// only fans the transitions out to subscribers.
package identity

import (
	"context"
	"sync"
)

// Anonymous is the identity of a session nobody is signed in to.
const Anonymous = ""

// Listener receives the new identity after every transition.
type Listener func(ctx context.Context, userID string)

type Signal struct {
	mu        sync.RWMutex
	current   string
	listeners []Listener
}

func NewSignal() *Signal {
	return &Signal{}
}

// Current returns the signed-in user id or Anonymous.
func (s *Signal) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Signal) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// SignIn switches to userID. Listeners fire only when the value changes.
func (s *Signal) SignIn(ctx context.Context, userID string) bool {
	return s.set(ctx, userID)
}

func (s *Signal) SignOut(ctx context.Context) bool {
	return s.set(ctx, Anonymous)
}

func (s *Signal) set(ctx context.Context, userID string) bool {
	s.mu.Lock()
	if s.current == userID {
		s.mu.Unlock()
		return false
	}
	s.current = userID
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, userID)
	}
	return true
}
