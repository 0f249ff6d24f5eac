package concurrency

import (
	"hash"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/aria/pkg/log"
	"github.com/holiman/bloomfilter/v2"
)

// DedupKeyKind distinguishes the variants of a DedupKey.
type DedupKeyKind int

const (
	KeyString DedupKeyKind = iota
	KeyU64
	KeyComposite
	KeyPreHashed
)

// DedupKey is a deduplication key. Composite keys hash positionally: two
// composites are equal iff all fields match in order.
type DedupKey struct {
	Kind       DedupKeyKind
	Str        string
	Num        uint64
	Composite  []string
	PreHashed  uint64
}

// StringKey builds a DedupKey from a string.
func StringKey(s string) DedupKey { return DedupKey{Kind: KeyString, Str: s} }

// U64Key builds a DedupKey from an integer.
func U64Key(n uint64) DedupKey { return DedupKey{Kind: KeyU64, Num: n} }

// CompositeKey builds a DedupKey from an ordered set of string fields.
func CompositeKey(fields []string) DedupKey { return DedupKey{Kind: KeyComposite, Composite: fields} }

// PreHashedKey wraps an already-computed hash value.
func PreHashedKey(h uint64) DedupKey { return DedupKey{Kind: KeyPreHashed, PreHashed: h} }

// HashValue derives the 64-bit hash used to index this key internally.
func (k DedupKey) HashValue() uint64 {
	if k.Kind == KeyPreHashed {
		return k.PreHashed
	}
	if k.Kind == KeyU64 {
		return k.Num
	}

	h := fnv.New64a()
	switch k.Kind {
	case KeyString:
		h.Write([]byte(k.Str))
	case KeyComposite:
		for _, f := range k.Composite {
			h.Write([]byte(f))
			h.Write([]byte{0}) // separator so ["ab","c"] != ["a","bc"]
		}
	}
	return h.Sum64()
}

// DedupStats accumulates per-deduplicator counters.
type DedupStats struct {
	DuplicatesFound uint64
	UniqueAdded     uint64
	ExpiredRemoved  uint64
	CurrentEntries  int
	EvictedEntries  uint64
}

type dedupEntry struct {
	hash      uint64
	firstSeen time.Time
	lastSeen  time.Time
	count     uint32
	expiresAt time.Time
}

// Deduplicator is the exact-match variant: a TTL-renewing hash map with LRU
// eviction once max_entries is exceeded.
type Deduplicator struct {
	mu              sync.Mutex
	entries         map[uint64]*dedupEntry
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	maxEntries      int
	stats           DedupStats
}

// NewDeduplicator creates an exact-match deduplicator with a 10000-entry cap.
func NewDeduplicator(defaultTTL time.Duration) *Deduplicator {
	return NewDeduplicatorWithCapacity(defaultTTL, 10000)
}

// NewDeduplicatorWithCapacity creates an exact-match deduplicator bounded to
// maxEntries live entries.
func NewDeduplicatorWithCapacity(defaultTTL time.Duration, maxEntries int) *Deduplicator {
	return &Deduplicator{
		entries:         make(map[uint64]*dedupEntry),
		defaultTTL:      defaultTTL,
		cleanupInterval: 60 * time.Second,
		lastCleanup:     time.Now(),
		maxEntries:      maxEntries,
	}
}

// CheckAndUpdate reports whether key was already seen and live; either way
// it records this observation (renewing TTL on a hit, inserting on a miss).
func (d *Deduplicator) CheckAndUpdate(key DedupKey) bool {
	d.maybeCleanup()

	h := key.HashValue()
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.entries[h]; ok && entry.expiresAt.After(now) {
		entry.lastSeen = now
		entry.count++
		entry.expiresAt = now.Add(d.defaultTTL)
		d.stats.DuplicatesFound++
		return true
	}

	d.entries[h] = &dedupEntry{hash: h, firstSeen: now, lastSeen: now, count: 1, expiresAt: now.Add(d.defaultTTL)}
	d.stats.UniqueAdded++
	d.checkCapacity()
	return false
}

// Contains checks for a live entry without updating it.
func (d *Deduplicator) Contains(key DedupKey) bool {
	d.maybeCleanup()

	h := key.HashValue()
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[h]
	return ok && entry.expiresAt.After(now)
}

// Remove deletes key's entry if present, returning whether it existed.
func (d *Deduplicator) Remove(key DedupKey) bool {
	h := key.HashValue()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.entries[h]
	delete(d.entries, h)
	return ok
}

// Clear removes all entries.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[uint64]*dedupEntry)
}

// Stats returns a snapshot of the deduplicator's counters.
func (d *Deduplicator) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.CurrentEntries = len(d.entries)
	return s
}

// Len returns the current entry count.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Deduplicator) maybeCleanup() {
	d.mu.Lock()
	shouldCleanup := time.Since(d.lastCleanup) > d.cleanupInterval
	d.mu.Unlock()

	if shouldCleanup {
		d.Cleanup()
	}
}

// Cleanup removes all expired entries.
func (d *Deduplicator) Cleanup() {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	before := len(d.entries)
	for h, e := range d.entries {
		if !e.expiresAt.After(now) {
			delete(d.entries, h)
		}
	}
	removed := before - len(d.entries)
	if removed > 0 {
		d.stats.ExpiredRemoved += uint64(removed)
	}
	d.lastCleanup = now
}

// checkCapacity evicts expired entries first, then the least-recently-seen
// entries until the map is back at max_entries. Caller must hold d.mu.
func (d *Deduplicator) checkCapacity() {
	if len(d.entries) <= d.maxEntries {
		return
	}

	now := time.Now()
	var toRemove []uint64
	for h, e := range d.entries {
		if !e.expiresAt.After(now) {
			toRemove = append(toRemove, h)
		}
	}

	remaining := len(d.entries) - len(toRemove)
	if remaining > d.maxEntries {
		type kv struct {
			hash     uint64
			lastSeen time.Time
		}
		sorted := make([]kv, 0, len(d.entries))
		removedSet := make(map[uint64]bool, len(toRemove))
		for _, h := range toRemove {
			removedSet[h] = true
		}
		for h, e := range d.entries {
			if removedSet[h] {
				continue
			}
			sorted = append(sorted, kv{hash: h, lastSeen: e.lastSeen})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].lastSeen.Before(sorted[j].lastSeen) })

		extra := remaining - d.maxEntries
		for i := 0; i < extra && i < len(sorted); i++ {
			toRemove = append(toRemove, sorted[i].hash)
		}
	}

	for _, h := range toRemove {
		delete(d.entries, h)
	}
	if len(toRemove) > 0 {
		d.stats.EvictedEntries += uint64(len(toRemove))
		log.Logger.Debug().Int("count", len(toRemove)).Msg("evicted deduplicator entries over capacity")
	}
}

// SlidingWindowDeduplicator reports a key as a duplicate whenever it was
// last seen within window_size of now.
type SlidingWindowDeduplicator struct {
	mu         sync.Mutex
	windowSize time.Duration
	windows    map[uint64][]time.Time
	stats      DedupStats
}

// NewSlidingWindowDeduplicator creates a sliding-window deduplicator.
func NewSlidingWindowDeduplicator(windowSize time.Duration) *SlidingWindowDeduplicator {
	return &SlidingWindowDeduplicator{windowSize: windowSize, windows: make(map[uint64][]time.Time)}
}

// Check reports whether key has been observed within the window, and
// records this observation.
func (s *SlidingWindowDeduplicator) Check(key DedupKey) bool {
	h := key.HashValue()
	now := time.Now()
	cutoff := now.Add(-s.windowSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	timestamps := s.windows[h]
	kept := timestamps[:0]
	isDuplicate := false
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
			isDuplicate = true
		}
	}
	kept = append(kept, now)
	s.windows[h] = kept

	if isDuplicate {
		s.stats.DuplicatesFound++
	} else {
		s.stats.UniqueAdded++
	}
	return isDuplicate
}

// Clear removes all recorded history.
func (s *SlidingWindowDeduplicator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = make(map[uint64][]time.Time)
}

// Stats returns a snapshot of the sliding-window deduplicator's counters.
func (s *SlidingWindowDeduplicator) Stats() DedupStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// preHashedSum64 adapts a precomputed uint64 into a hash.Hash64 so it can be
// fed to bloomfilter.Filter, which hashes by hash.Hash64 rather than raw
// uint64.
type preHashedSum64 uint64

func (preHashedSum64) Write(p []byte) (int, error) { return len(p), nil }
func (preHashedSum64) Reset()                      {}
func (preHashedSum64) Size() int                   { return 8 }
func (preHashedSum64) BlockSize() int               { return 8 }
func (h preHashedSum64) Sum(b []byte) []byte        { return b }
func (h preHashedSum64) Sum64() uint64              { return uint64(h) }

var _ hash.Hash64 = preHashedSum64(0)

// BloomDeduplicator is a memory-efficient, false-positive-tolerant existence
// hint backed by github.com/holiman/bloomfilter/v2.
type BloomDeduplicator struct {
	filter *bloomfilter.Filter
	mu     sync.Mutex
	stats  DedupStats
}

// NewBloomDeduplicator creates a filter with an explicit bit-array size and
// hash function count.
func NewBloomDeduplicator(size uint64, hashCount uint64) *BloomDeduplicator {
	f, err := bloomfilter.New(size, hashCount)
	if err != nil {
		// size/hashCount are always positive call-site constants; New only
		// fails on invalid parameters.
		panic("invalid bloom filter parameters: " + err.Error())
	}
	return &BloomDeduplicator{filter: f}
}

// NewBloomDeduplicatorWithExpectedItems derives size and hash count from an
// expected item count and a target false-positive rate.
func NewBloomDeduplicatorWithExpectedItems(expectedItems uint64, falsePositiveRate float64) *BloomDeduplicator {
	f, err := bloomfilter.NewOptimal(expectedItems, falsePositiveRate)
	if err != nil {
		panic("invalid bloom filter parameters: " + err.Error())
	}
	return &BloomDeduplicator{filter: f}
}

// Check reports whether key was possibly already added, then adds it.
func (b *BloomDeduplicator) Check(key DedupKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := preHashedSum64(key.HashValue())
	found := b.filter.Contains(h)
	b.filter.Add(h)

	if found {
		b.stats.DuplicatesFound++
	} else {
		b.stats.UniqueAdded++
	}
	return found
}

// Clear resets the filter to empty.
func (b *BloomDeduplicator) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.Reset()
}

// Stats returns a snapshot of the bloom deduplicator's counters.
func (b *BloomDeduplicator) Stats() DedupStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// HybridStats aggregates counters across a HybridDeduplicator's layers.
type HybridStats struct {
	Exact   DedupStats
	Sliding DedupStats
	Bloom   *DedupStats
}

// HybridDeduplicator composes exact, sliding-window, and optional Bloom
// layers, checking them in order from shortest- to longest-lived.
type HybridDeduplicator struct {
	exact   *Deduplicator
	sliding *SlidingWindowDeduplicator
	bloom   *BloomDeduplicator
}

// NewHybridDeduplicator creates a hybrid without the Bloom layer.
func NewHybridDeduplicator(exactTTL, windowSize time.Duration) *HybridDeduplicator {
	return &HybridDeduplicator{
		exact:   NewDeduplicator(exactTTL),
		sliding: NewSlidingWindowDeduplicator(windowSize),
	}
}

// WithBloom enables the Bloom layer, sized from expected item count and
// target false-positive rate.
func (h *HybridDeduplicator) WithBloom(expectedItems uint64, falsePositiveRate float64) *HybridDeduplicator {
	h.bloom = NewBloomDeduplicatorWithExpectedItems(expectedItems, falsePositiveRate)
	return h
}

// Check reports whether key is a duplicate under any layer, in increasing
// order of lifespan. The Bloom layer is consulted last and is advisory only
// (a false positive there does not make Check return true by itself).
func (h *HybridDeduplicator) Check(key DedupKey) bool {
	if h.exact.CheckAndUpdate(key) {
		return true
	}
	if h.sliding.Check(key) {
		return true
	}
	if h.bloom != nil {
		h.bloom.Check(key)
	}
	return false
}

// Stats returns combined counters across all enabled layers.
func (h *HybridDeduplicator) Stats() HybridStats {
	s := HybridStats{Exact: h.exact.Stats(), Sliding: h.sliding.Stats()}
	if h.bloom != nil {
		bs := h.bloom.Stats()
		s.Bloom = &bs
	}
	return s
}

// keyDebugString renders a DedupKey for logging.
func keyDebugString(k DedupKey) string {
	switch k.Kind {
	case KeyString:
		return k.Str
	case KeyU64:
		return strconv.FormatUint(k.Num, 10)
	case KeyComposite:
		out := ""
		for i, f := range k.Composite {
			if i > 0 {
				out += "|"
			}
			out += f
		}
		return out
	default:
		return strconv.FormatUint(k.PreHashed, 16)
	}
}
