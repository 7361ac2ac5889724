/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: cache_test.go
Description: Unit tests for the rule cache: LRU eviction, stale entry detection, export/import
round trips and compressed file persistence.
*/

package cache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/kleascm/akaylee-parser/pkg/cache"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberSnapshot(t *testing.T) *grammar.Snapshot {
	t.Helper()
	r, err := grammar.RuleSpec{Name: "Number", Production: "digit+", TerminalRefs: []string{"digit"}}.Build(nil)
	require.NoError(t, err)
	store, err := grammar.NewStore(grammar.Definition{
		Start:     "Number",
		Terminals: []grammar.TerminalDef{{Name: "digit", Pattern: `[0-9]`}},
		Rules:     []grammar.Rule{r},
	}, nil)
	require.NoError(t, err)
	return store.Latest()
}

func proposal(t *testing.T, name, production string, terms ...string) grammar.Proposal {
	t.Helper()
	r, err := grammar.RuleSpec{Name: name, Production: production, TerminalRefs: terms, Override: true}.Build(nil)
	require.NoError(t, err)
	return grammar.Proposal{Rule: r, Confidence: 0.9, SourceFingerprint: "fp-" + name}
}

// TestLookupInsert tests basic hits, misses and LRU eviction
func TestLookupInsert(t *testing.T) {
	snap := numberSnapshot(t)
	c, err := cache.New(2)
	require.NoError(t, err)

	_, ok := c.Lookup("a", snap)
	assert.False(t, ok)

	c.Insert("a", proposal(t, "Number", "digit+ ('a' digit+)*", "digit"))
	c.Insert("b", proposal(t, "Pair", "Number ',' Number"))

	got, ok := c.Lookup("a", snap)
	require.True(t, ok)
	assert.Equal(t, "digit+ ('a' digit+)*", grammar.FormatProduction(got.Rule.Production))

	// "a" was used last, so "b" is evicted
	c.Insert("c", proposal(t, "Triple", "Number Number Number"))
	_, ok = c.Lookup("b", snap)
	assert.False(t, ok)
	_, ok = c.Lookup("a", snap)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, uint64(3), stats.Inserts)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Capacity)
}

// TestStaleEntries tests that proposals referencing unknown symbols are misses
func TestStaleEntries(t *testing.T) {
	snap := numberSnapshot(t)
	c, err := cache.New(8)
	require.NoError(t, err)

	c.Insert("stale", proposal(t, "List", "Item+"))
	_, ok := c.Lookup("stale", snap)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Stale)

	// terminals shipped with the proposal count as available
	word := proposal(t, "Word", "letter+", "letter")
	word.Terminals = []grammar.TerminalDef{{Name: "letter", Pattern: `[a-z]`}}
	c.Insert("word", word)
	got, ok := c.Lookup("word", snap)
	require.True(t, ok)
	assert.Equal(t, word.Terminals, got.Terminals)
}

// TestExportImportRoundTrip tests that importing an export reproduces every lookup
func TestExportImportRoundTrip(t *testing.T) {
	snap := numberSnapshot(t)
	src, err := cache.New(16)
	require.NoError(t, err)

	keys := []string{"k1", "k2", "k3", "k4"}
	for i, k := range keys {
		src.Insert(k, proposal(t, "Number", fmt.Sprintf("digit+ ('%c' digit+)*", 'a'+i), "digit"))
	}
	// touch k1 so it becomes the most recent entry
	_, ok := src.Lookup("k1", snap)
	require.True(t, ok)

	exported := src.Export()
	require.Len(t, exported, 4)
	assert.Equal(t, []string{"k2", "k3", "k4", "k1"}, entryKeys(exported))

	dst, err := cache.New(16)
	require.NoError(t, err)
	require.NoError(t, dst.Import(exported))
	assert.Equal(t, exported, dst.Export())

	for _, k := range keys {
		want, ok := src.Lookup(k, snap)
		require.True(t, ok)
		got, ok := dst.Lookup(k, snap)
		require.True(t, ok)
		assert.True(t, want.Rule.SameDefinition(got.Rule), k)
		assert.Equal(t, want.Confidence, got.Confidence)
		assert.Equal(t, want.SourceFingerprint, got.SourceFingerprint)
	}
}

// TestImportRejectsBadEntries tests that a broken export is not partially applied
func TestImportRejectsBadEntries(t *testing.T) {
	c, err := cache.New(4)
	require.NoError(t, err)

	good := proposal(t, "Number", "digit digit", "digit").Record()
	bad := good
	bad.Rule.Production = "digit ("
	err = c.Import([]cache.Entry{{Key: "good", Proposal: good}, {Key: "bad", Proposal: bad}})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	assert.Error(t, c.Import([]cache.Entry{{Proposal: good}}))
}

// TestConcurrentAccess tests the cache under parallel readers and writers
func TestConcurrentAccess(t *testing.T) {
	snap := numberSnapshot(t)
	c, err := cache.New(32)
	require.NoError(t, err)
	p := proposal(t, "Number", "digit digit", "digit")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%40)
				c.Insert(key, p)
				c.Lookup(key, snap)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 32)
}

// TestFileStore tests compressed persistence through afero
func TestFileStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := &cache.FileStore{Fs: fs, Path: "state/rules.cache"}

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	c, err := cache.New(4)
	require.NoError(t, err)
	c.Insert("k", proposal(t, "Number", "digit+ ('a' digit+)*", "digit"))
	require.NoError(t, store.Save(c.Export()))

	exists, err := afero.Exists(fs, "state/rules.cache.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "k", loaded[0].Key)
	assert.Equal(t, "digit+ ('a' digit+)*", loaded[0].Proposal.Rule.Production)
	assert.True(t, loaded[0].InsertedAt.Equal(c.Export()[0].InsertedAt))

	require.NoError(t, afero.WriteFile(fs, "state/rules.cache", []byte("not zstd"), 0644))
	_, err = store.Load()
	assert.Error(t, err)
}

func entryKeys(entries []cache.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}
