package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordsAndPersists(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	require.NoError(t, err)

	tracker.RecordCall("gemini:flash", "conv-1", "")
	tracker.RecordTokens("gemini:flash", "conv-1", 10, 5)
	tracker.RecordCall("gemini:flash", "conv-1", "forbidden")
	tracker.RecordTokens("gemini:flash", "conv-1", 2, 3)
	tracker.RecordCall("static", "conv-2", "")

	stats := tracker.Stats()
	assert.Equal(t, Counts{Calls: 3, Fallbacks: 1, InputTokens: 12, OutputTokens: 8}, stats.Total)
	assert.Equal(t, int64(20), stats.Total.TotalTokens())
	assert.Equal(t, Counts{Calls: 2, Fallbacks: 1, InputTokens: 12, OutputTokens: 8}, stats.ByGenerator["gemini:flash"])
	assert.Equal(t, int64(1), stats.ByConversation["conv-2"].Calls)
	assert.Equal(t, map[string]int64{"forbidden": 1}, stats.ByFallback)

	require.NoError(t, tracker.Save())
	data, err := os.ReadFile(filepath.Join(dir, "usage.json"))
	require.NoError(t, err)
	var persisted UsageData
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, int64(3), persisted.Aggregate.Total.Calls)

	reopened, err := NewTracker(dir)
	require.NoError(t, err)
	assert.Equal(t, stats, reopened.Stats())
}

func TestTracker_SaveWithoutChangesWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	require.NoError(t, err)

	require.NoError(t, tracker.Save())
	_, err = os.Stat(tracker.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestTracker_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage.json"), []byte("{not json"), 0644))

	tracker, err := NewTracker(dir)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, tracker.Stats().Total)

	tracker.RecordCall("static", "", "")
	require.NoError(t, tracker.Save())
	reopened, err := NewTracker(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reopened.Stats().Total.Calls)
	assert.Empty(t, reopened.Stats().ByConversation)
}

func TestTracker_StatsAreCopies(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	tracker.RecordCall("static", "c", "")

	stats := tracker.Stats()
	stats.ByGenerator["static"] = Counts{Calls: 99}
	assert.Equal(t, int64(1), tracker.Stats().ByGenerator["static"].Calls)
}

func TestTracker_ContextHelpers(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)

	ctx := NewContext(context.Background(), tracker)
	assert.Same(t, tracker, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
