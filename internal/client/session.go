package client

import "sync"

// Session holds the current viewer. It is written only by the auth-change
// callback and by the profile dispatch after sign-up.
type Session struct {
	mu       sync.RWMutex
	identity Identity
	attached *handle
}

func NewSession() *Session {
	return &Session{}
}

// Current returns the viewer, or the empty sentinel when signed out.
func (s *Session) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Login replaces the stored identity wholesale.
func (s *Session) Login(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Logout resets the identity to the empty sentinel.
func (s *Session) Logout() {
	s.mu.Lock()
	s.identity = Identity{}
	s.mu.Unlock()
}

// Attach subscribes to auth changes. A second Attach while attached is a no-op.
// Changes delivered after Detach are ignored.
func (s *Session) Attach(auth AuthService) {
	s.mu.Lock()
	if s.attached != nil {
		s.mu.Unlock()
		return
	}
	h := &handle{}
	s.attached = h
	s.mu.Unlock()

	release := auth.OnAuthStateChanged(func(id *Identity) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.attached != h {
			return
		}
		if id == nil {
			s.identity = Identity{}
			return
		}
		s.identity = *id
	})

	s.mu.Lock()
	if s.attached != h {
		// Detached while subscribing.
		s.mu.Unlock()
		release()
		return
	}
	h.release = release
	s.mu.Unlock()
}

// Detach releases the auth-change subscription.
func (s *Session) Detach() {
	s.mu.Lock()
	h := s.attached
	s.attached = nil
	s.mu.Unlock()
	h.Release()
}
