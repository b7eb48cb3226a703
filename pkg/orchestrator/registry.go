package orchestrator

import "sync"

// Registry is the process-wide Session lookup, used by the HTTP control
// plane and the idle reaper to find a Session and its Pipeline by ID.
// Pipeline stages (ASR callbacks, TTS streaming, scenario advancement) do
// not resolve through it: they hold the Pipeline's *Session directly and
// guard their output with an epoch snapshot checked via StaleEpoch.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	pipelines map[string]*Pipeline
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session), pipelines: make(map[string]*Pipeline)}
}

// Put registers s, replacing anything previously registered under the
// same ID.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get resolves id to its Session, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops id from the registry. Safe to call more than once.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.pipelines, id)
}

// PutPipeline associates p with id, so an idle-reaper or other
// registry-only caller can reach the Pipeline bound to a Session without
// needing its own separate by-ID tracking.
func (r *Registry) PutPipeline(id string, p *Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[id] = p
}

// Pipeline resolves id to its bound Pipeline, if one is still registered.
func (r *Registry) Pipeline(id string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	return p, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Each calls fn for every registered session. fn must not call back into
// the Registry it was handed (Put/Remove take the same lock).
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		fn(s)
	}
}

// IdleSessions returns the IDs of sessions idle for longer than d, for an
// idle-reaper goroutine to close.
func (r *Registry) IdleSessions(d func(*Session) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if d(s) {
			ids = append(ids, id)
		}
	}
	return ids
}
