package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduplicator_CheckAndUpdateDetectsRepeat(t *testing.T) {
	d := NewDeduplicator(time.Minute)

	require.False(t, d.CheckAndUpdate(StringKey("a")), "first observation must not be a duplicate")
	require.True(t, d.CheckAndUpdate(StringKey("a")), "second observation within TTL must be a duplicate")

	stats := d.Stats()
	require.Equal(t, uint64(1), stats.UniqueAdded)
	require.Equal(t, uint64(1), stats.DuplicatesFound)
}

func TestDeduplicator_TTLExpiryAllowsReobservation(t *testing.T) {
	d := NewDeduplicator(10 * time.Millisecond)

	require.False(t, d.CheckAndUpdate(StringKey("a")))
	time.Sleep(20 * time.Millisecond)
	require.False(t, d.CheckAndUpdate(StringKey("a")), "an expired entry must not register as a duplicate")
}

func TestDeduplicator_EvictsLRUAtCapacity(t *testing.T) {
	d := NewDeduplicatorWithCapacity(time.Hour, 2)

	d.CheckAndUpdate(StringKey("a"))
	time.Sleep(time.Millisecond)
	d.CheckAndUpdate(StringKey("b"))
	time.Sleep(time.Millisecond)
	d.CheckAndUpdate(StringKey("c")) // triggers eviction of "a", the least-recently-seen

	require.Equal(t, 2, d.Len())
	require.False(t, d.Contains(StringKey("a")), "the LRU entry must be evicted at capacity+1")
	require.True(t, d.Contains(StringKey("b")))
	require.True(t, d.Contains(StringKey("c")))
}

func TestDeduplicator_RemoveAndClear(t *testing.T) {
	d := NewDeduplicator(time.Hour)
	d.CheckAndUpdate(StringKey("a"))

	require.True(t, d.Remove(StringKey("a")))
	require.False(t, d.Remove(StringKey("a")), "removing a missing key returns false")

	d.CheckAndUpdate(StringKey("b"))
	d.Clear()
	require.Equal(t, 0, d.Len())
}

func TestDedupKey_CompositeMatchesPositionally(t *testing.T) {
	d := NewDeduplicator(time.Hour)

	require.False(t, d.CheckAndUpdate(CompositeKey([]string{"ab", "c"})))
	require.False(t, d.CheckAndUpdate(CompositeKey([]string{"a", "bc"})), "composite keys must not collide across field boundaries")
	require.True(t, d.CheckAndUpdate(CompositeKey([]string{"ab", "c"})), "identical composites in the same order must match")
}

func TestDedupKey_U64AndPreHashed(t *testing.T) {
	require.Equal(t, uint64(7), U64Key(7).HashValue())
	require.Equal(t, uint64(99), PreHashedKey(99).HashValue())
}

func TestSlidingWindowDeduplicator_ChecksWithinWindow(t *testing.T) {
	s := NewSlidingWindowDeduplicator(30 * time.Millisecond)

	require.False(t, s.Check(StringKey("a")))
	require.True(t, s.Check(StringKey("a")), "a repeat within the window must be a duplicate")

	time.Sleep(40 * time.Millisecond)
	require.False(t, s.Check(StringKey("a")), "a repeat outside the window must not be a duplicate")
}

func TestBloomDeduplicator_FlagsLikelyDuplicates(t *testing.T) {
	b := NewBloomDeduplicatorWithExpectedItems(1000, 0.01)

	require.False(t, b.Check(StringKey("a")), "an unseen key must not be flagged")
	require.True(t, b.Check(StringKey("a")), "a previously-added key must be flagged (modulo false positives)")
}

func TestHybridDeduplicator_ChecksAllLayers(t *testing.T) {
	h := NewHybridDeduplicator(time.Hour, time.Hour).WithBloom(1000, 0.01)

	require.False(t, h.Check(StringKey("a")))
	require.True(t, h.Check(StringKey("a")), "a duplicate caught by the exact layer must short-circuit")

	stats := h.Stats()
	require.NotNil(t, stats.Bloom)
	require.Equal(t, uint64(1), stats.Exact.DuplicatesFound)
}
