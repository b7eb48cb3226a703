package orchestrator

import "testing"

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry()
	s := NewSession("learner-1", LanguageEn, AgentProfile{}, DefaultConfig())
	r.Put(s)

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != s {
		t.Fatalf("Get returned a different *Session")
	}

	r.Remove(s.ID)
	if _, err := r.Get(s.ID); err != ErrSessionNotFound {
		t.Fatalf("Get after Remove = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryLenAndEach(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		r.Put(NewSession("learner", LanguageEn, AgentProfile{}, DefaultConfig()))
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	count := 0
	r.Each(func(*Session) { count++ })
	if count != 3 {
		t.Fatalf("Each visited %d sessions, want 3", count)
	}
}

func TestRegistryIdleSessions(t *testing.T) {
	r := NewRegistry()
	s1 := NewSession("l1", LanguageEn, AgentProfile{}, DefaultConfig())
	s2 := NewSession("l2", LanguageEn, AgentProfile{}, DefaultConfig())
	r.Put(s1)
	r.Put(s2)

	idle := r.IdleSessions(func(s *Session) bool { return s == s1 })
	if len(idle) != 1 || idle[0] != s1.ID {
		t.Fatalf("IdleSessions = %v, want only %s", idle, s1.ID)
	}
}
