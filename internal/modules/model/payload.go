package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// FeatureSetVersion tags the feature contract a payload was trained under.
const FeatureSetVersion = "v1"

// Metadata describes a trained payload.
type Metadata struct {
	FeatureSetVersion string      `json:"feature_set_version" msgpack:"feature_set_version"`
	TrainedAt         time.Time   `json:"trained_at" msgpack:"trained_at"`
	TrainRows         int         `json:"train_rows" msgpack:"train_rows"`
	TestRows          int         `json:"test_rows" msgpack:"test_rows"`
	Metrics           Metrics     `json:"metrics" msgpack:"metrics"`
	Hyperparams       Hyperparams `json:"hyperparams" msgpack:"hyperparams"`
}

// Payload is the persisted model unit: classifier plus the feature-column
// contract fixed at training time. FeatureColumns order must be replayed
// identically at inference; features absent from the list are ignored and
// listed features absent at inference are treated as zero.
type Payload struct {
	Forest         *Forest  `json:"-" msgpack:"forest"`
	FeatureColumns []string `json:"feature_columns" msgpack:"feature_columns"`
	Metadata       Metadata `json:"metadata" msgpack:"metadata"`
}

// Save writes the payload to disk, creating parent directories as needed.
func (p *Payload) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode model payload: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model payload: %w", err)
	}
	return nil
}

// LoadPayload reads a payload from disk. A missing or corrupt file is an
// error here; Cache.Get turns it into a nil result for scoring callers.
func LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model payload: %w", err)
	}

	var p Payload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode model payload: %w", err)
	}
	if p.Forest == nil || len(p.FeatureColumns) == 0 {
		return nil, fmt.Errorf("model payload at %s is incomplete", path)
	}
	return &p, nil
}

// Cache is a bounded LRU of loaded payloads keyed by path, owned by the
// caller and passed into scoring/backtest rather than held as ambient
// global state.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Payload
	order    []string
	log      zerolog.Logger
}

// NewCache creates a payload cache holding at most capacity entries.
func NewCache(capacity int, log zerolog.Logger) *Cache {
	if capacity <= 0 {
		capacity = 4
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Payload, capacity),
		log:      log.With().Str("component", "model_cache").Logger(),
	}
}

// Get returns the payload for path, loading it on first use. Load failure
// yields nil — never an error surfaced to the scorer, which falls back to
// the neutral probability.
func (c *Cache) Get(path string) *Payload {
	if path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[path]; ok {
		c.touch(path)
		return p
	}

	p, err := LoadPayload(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Model payload unavailable")
		return nil
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[path] = p
	c.order = append(c.order, path)
	return p
}

// Clear drops all cached payloads.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Payload, c.capacity)
	c.order = nil
}

func (c *Cache) touch(path string) {
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, path)
			return
		}
	}
}
