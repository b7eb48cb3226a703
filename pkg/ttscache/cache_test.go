package ttscache

import (
	"context"
	"testing"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

func TestKeyIsStableAndCaseInsensitive(t *testing.T) {
	k1 := Key(orchestrator.LanguageFr, orchestrator.VoiceF1, orchestrator.EmotionNeutre, "Bonjour Marie")
	k2 := Key(orchestrator.LanguageFr, orchestrator.VoiceF1, orchestrator.EmotionNeutre, "bonjour marie")
	if k1 != k2 {
		t.Errorf("expected normalized keys to match: %s != %s", k1, k2)
	}

	k3 := Key(orchestrator.LanguageFr, orchestrator.VoiceF1, orchestrator.EmotionEncouragement, "Bonjour Marie")
	if k1 == k3 {
		t.Error("expected different emotion to produce a different key")
	}
}

func TestLRUCacheRoundTrip(t *testing.T) {
	c := NewLRUCache(2)
	ctx := context.Background()

	entry := Entry{Audio: []byte{1, 2, 3}, SampleRate: 16000, Codec: "pcm16"}
	if err := c.Put(ctx, "a", entry, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get(ctx, "a")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Audio) != 3 {
		t.Errorf("expected 3 bytes of audio, got %d", len(got.Audio))
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache(2)
	ctx := context.Background()

	c.Put(ctx, "a", Entry{Audio: []byte{1}}, time.Minute)
	c.Put(ctx, "b", Entry{Audio: []byte{2}}, time.Minute)
	c.Put(ctx, "c", Entry{Audio: []byte{3}}, time.Minute)

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected oldest entry 'a' to have been evicted")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("expected most recent entry 'c' to still be present")
	}
}

func TestLRUCacheExpiresEntries(t *testing.T) {
	c := NewLRUCache(4)
	ctx := context.Background()

	c.Put(ctx, "a", Entry{Audio: []byte{1}}, -time.Second)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected already-expired entry to miss")
	}
}

type fakeCache struct {
	entries map[string]Entry
	calls   int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string]Entry)} }

func (f *fakeCache) Get(_ context.Context, key string) (*Entry, bool) {
	f.calls++
	e, ok := f.entries[key]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (f *fakeCache) Put(_ context.Context, key string, entry Entry, _ time.Duration) error {
	f.entries[key] = entry
	return nil
}

func TestFailoverCacheFallsBackToSecondary(t *testing.T) {
	primary := newFakeCache()
	secondary := newFakeCache()
	secondary.entries["k"] = Entry{Audio: []byte{9}}

	fc := NewFailoverCache(primary, secondary)
	got, ok := fc.Get(context.Background(), "k")
	if !ok {
		t.Fatal("expected secondary hit")
	}
	if len(got.Audio) != 1 {
		t.Errorf("unexpected audio length: %d", len(got.Audio))
	}
}

func TestFailoverCachePutWritesThroughBoth(t *testing.T) {
	primary := newFakeCache()
	secondary := newFakeCache()
	fc := NewFailoverCache(primary, secondary)

	if err := fc.Put(context.Background(), "k", Entry{Audio: []byte{1, 2}}, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := primary.entries["k"]; !ok {
		t.Error("expected primary to have the entry")
	}
	if _, ok := secondary.entries["k"]; !ok {
		t.Error("expected secondary to have the entry")
	}
}
