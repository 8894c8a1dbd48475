// Package usage records generator activity: calls, template fallbacks and
// model tokens, aggregated per generator and per conversation and persisted
// as JSON in the data directory.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"companion/internal/logging"
)

const fileName = "usage.json"

type contextKey struct{}

// Tracker manages usage recording and persistence. It is safe for concurrent
// use; nothing is written until Save.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
	now      func() time.Time
}

// NewTracker opens the usage file under dataDir. A missing file starts empty;
// a corrupt one is logged and replaced on the next Save.
func NewTracker(dataDir string) (*Tracker, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dataDir, fileName),
		data:     emptyData(),
		now:      time.Now,
	}
	if err := t.Load(); err != nil {
		logging.GeneratorWarn("Usage file %s unreadable, starting empty: %v", t.filePath, err)
		t.data = emptyData()
	}
	return t, nil
}

func emptyData() UsageData {
	return UsageData{
		Version: "1",
		Aggregate: AggregatedStats{
			ByGenerator:    make(map[string]Counts),
			ByConversation: make(map[string]Counts),
			ByFallback:     make(map[string]int64),
		},
	}
}

// Path returns the usage file path.
func (t *Tracker) Path() string { return t.filePath }

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	loaded := emptyData()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	// Files written by hand or truncated may lack some maps.
	if loaded.Aggregate.ByGenerator == nil {
		loaded.Aggregate.ByGenerator = make(map[string]Counts)
	}
	if loaded.Aggregate.ByConversation == nil {
		loaded.Aggregate.ByConversation = make(map[string]Counts)
	}
	if loaded.Aggregate.ByFallback == nil {
		loaded.Aggregate.ByFallback = make(map[string]int64)
	}
	t.data = loaded
	return nil
}

// Save writes the usage data if anything was recorded since the last save.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write usage: %w", err)
	}
	t.dirty = false
	return nil
}

// RecordCall counts one generator call. fallback is the reason the template
// was used instead, or empty when the generated reply was sent.
func (t *Tracker) RecordCall(generator, conversationID, fallback string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fellBack := fallback != ""
	agg := &t.data.Aggregate
	agg.Total.addCall(fellBack)
	update(agg.ByGenerator, generator, func(c *Counts) { c.addCall(fellBack) })
	if conversationID != "" {
		update(agg.ByConversation, conversationID, func(c *Counts) { c.addCall(fellBack) })
	}
	if fellBack {
		agg.ByFallback[fallback]++
	}
	t.touch()
}

// RecordTokens adds model token counts reported by a provider.
func (t *Tracker) RecordTokens(generator, conversationID string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.addTokens(input, output)
	update(agg.ByGenerator, generator, func(c *Counts) { c.addTokens(input, output) })
	if conversationID != "" {
		update(agg.ByConversation, conversationID, func(c *Counts) { c.addTokens(input, output) })
	}
	t.touch()
}

func (t *Tracker) touch() {
	t.dirty = true
	t.data.UpdatedAt = t.now().UTC()
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByGenerator = copyMap(stats.ByGenerator)
	stats.ByConversation = copyMap(stats.ByConversation)
	stats.ByFallback = copyMap(stats.ByFallback)
	return stats
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for key, v := range src {
		dst[key] = v
	}
	return dst
}

func update(m map[string]Counts, key string, fn func(*Counts)) {
	entry := m[key]
	fn(&entry)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
