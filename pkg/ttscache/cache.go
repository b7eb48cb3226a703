// Package ttscache implements the process-wide TTS Cache Entry store of
// spec §3: a content-addressed cache keyed on (language, voice, emotion,
// normalized text), backed by Redis with an in-process LRU shadow for
// read availability when Redis is unreachable.
package ttscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// compressionRatioGate mirrors spec §4.7 step 4: only store the compressed
// form if it actually shrank the payload usefully, or the payload was large
// enough that the decompression cost is worth paying regardless.
const (
	compressionRatioGate = 0.9
	minCompressSize      = 4 * 1024
)

// Entry is one cached synthesis result.
type Entry struct {
	Audio           []byte
	SampleRate      int
	Channels        int
	Duration        time.Duration
	Codec           string
	UncompressedLen int
	CreatedAt       time.Time
	Compressed      bool
}

// Key computes the cache key for a synthesis request (spec §3).
func Key(lang orchestrator.Language, voice orchestrator.Voice, emotion orchestrator.Emotion, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", lang, voice, emotion, normalized)))
	return hex.EncodeToString(sum[:])
}

// Cache is the interface the TTS Pipeline consumes; Redis and in-process
// LRU both satisfy it, letting the pipeline fail over transparently.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// RedisCache is the primary, process-wide, shared cache backend.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu        sync.RWMutex
	degraded  bool
	onDegrade func(err error)
}

func NewRedisCache(client *redis.Client, prefix string) (*RedisCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("ttscache: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ttscache: new zstd decoder: %w", err)
	}
	return &RedisCache{client: client, prefix: prefix, encoder: enc, decoder: dec}, nil
}

// OnDegrade registers a callback invoked the first time a Redis operation
// fails, so the caller can log the "degraded" signal spec's ambient
// observability expects.
func (c *RedisCache) OnDegrade(fn func(err error)) {
	c.mu.Lock()
	c.onDegrade = fn
	c.mu.Unlock()
}

func (c *RedisCache) markDegraded(err error) {
	c.mu.Lock()
	first := !c.degraded
	c.degraded = true
	cb := c.onDegrade
	c.mu.Unlock()
	if first && cb != nil {
		cb(err)
	}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.markDegraded(err)
		}
		return nil, false
	}
	entry, err := decodeEntry(raw, c.decoder)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (c *RedisCache) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := encodeEntry(entry, c.encoder)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.redisKey(key), raw, ttl).Err(); err != nil {
		c.markDegraded(err)
		return err
	}
	return nil
}

// compressIfWorthwhile applies the §4.7 step-4 gate: compress, and keep the
// compressed form only if it actually pays for itself.
func compressIfWorthwhile(audio []byte, enc *zstd.Encoder) ([]byte, bool) {
	compressed := enc.EncodeAll(audio, nil)
	ratio := float64(len(compressed)) / float64(max(len(audio), 1))
	if ratio <= compressionRatioGate || len(audio) >= minCompressSize {
		return compressed, true
	}
	return audio, false
}
