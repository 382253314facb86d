package store

import "sync"

// Scope holds the active scope id and a generation counter bumped on every
// switch. Reloads capture a Token before their remote call and commit through
// Commit once the call resolves.
type Scope struct {
	mu  sync.RWMutex
	id  string
	gen uint64
}

// Token identifies the scope a reload was started for.
type Token struct {
	scopeID string
	gen     uint64
}

func (t Token) ScopeID() string { return t.scopeID }

func NewScope(id string) *Scope { return &Scope{id: id} }

// Set switches the active scope and reports whether it changed.
func (s *Scope) Set(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		return false
	}
	s.id = id
	s.gen++
	return true
}

func (s *Scope) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Scope) Token() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Token{scopeID: s.id, gen: s.gen}
}

// Commit runs apply only if t is still valid, holding off scope switches until
// apply returns. It reports whether apply ran.
func (s *Scope) Commit(t Token, apply func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t.gen != s.gen || t.scopeID != s.id {
		return false
	}
	apply()
	return true
}
