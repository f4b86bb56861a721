package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
)

// RunAdapterTests runs the conformance test suite for an adapter implementation.
// The factory must return a fresh, not yet initialized adapter on every call.
func RunAdapterTests(t *testing.T, name string, factory adapter.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Find", func(t *testing.T) {
			testWriteFind(t, factory())
		})

		t.Run("OpaqueFields", func(t *testing.T) {
			testOpaqueFields(t, factory())
		})

		t.Run("MissingIDs", func(t *testing.T) {
			testMissingIDs(t, factory())
		})

		t.Run("ClearRemovesDocs", func(t *testing.T) {
			testClear(t, factory())
		})

		t.Run("InitIsIdempotent", func(t *testing.T) {
			testInitIdempotent(t, factory())
		})

		t.Run("QueryIndex", func(t *testing.T) {
			testQueryIndex(t, factory())
		})

		t.Run("QueryRegexIndexIsIntersection", func(t *testing.T) {
			testIntersection(t, factory())
		})

		t.Run("ScenarioLowAge", func(t *testing.T) {
			testScenario(t, factory(), 10)
		})

		t.Run("ScenarioHighAge", func(t *testing.T) {
			testScenario(t, factory(), 60)
		})

		t.Run("DuplicatePolicy", func(t *testing.T) {
			testDuplicates(t, factory())
		})

		t.Run("MalformedPattern", func(t *testing.T) {
			testMalformedPattern(t, factory())
		})

		t.Run("EmptyWrite", func(t *testing.T) {
			testEmptyWrite(t, factory())
		})

		t.Run("ConcurrentReads", func(t *testing.T) {
			testConcurrentReads(t, factory())
		})

		t.Run("MultipleBatches", func(t *testing.T) {
			testMultipleBatches(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// setup initializes the adapter and registers a cleanup that clears it
func setup(t testing.TB, a adapter.Adapter) context.Context {
	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Clear(ctx); err != nil {
			t.Errorf("Clear failed: %v", err)
		}
	})
	return ctx
}

// generate creates n random documents with a seed derived from the test name
func generate(t testing.TB, n int) []document.Document {
	opts := document.DefaultGeneratorOptions()
	opts.Seed = int64(len(t.Name())) * 7919
	opts.TextLength = 200
	return document.NewGenerator(&opts).Take(n)
}

// sortedIDs returns the sorted ids of the given documents
func sortedIDs(docs []document.Document) []string {
	ids := document.IDs(docs)
	sort.Strings(ids)
	return ids
}

// requireSameSet fails the test if got and want don't contain the same documents
func requireSameSet(t testing.TB, got, want []document.Document) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d documents, got %d", len(want), len(got))
	}

	byID := make(map[string]document.Document, len(want))
	for _, d := range want {
		byID[d.ID] = d
	}

	seen := make(map[string]bool, len(got))
	for i := range got {
		if seen[got[i].ID] {
			t.Fatalf("Document %s returned twice", got[i].ID)
		}
		seen[got[i].ID] = true

		w, ok := byID[got[i].ID]
		if !ok {
			t.Fatalf("Unexpected document %s in result", got[i].ID)
		}
		if !w.Equal(&got[i]) {
			t.Fatalf("Document %s differs: expected %+v, got %+v", got[i].ID, w, got[i])
		}
	}
}

// bruteForce evaluates q on docs, used as the reference for all query tests
func bruteForce(docs []document.Document, q document.Query) []document.Document {
	return adapter.Filter(docs, q)
}

// matchMode returns the match mode the adapter documents
func matchMode(a adapter.Adapter) document.MatchMode {
	return a.Info().Matching
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteFind(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 50)

	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	found, err := a.FindDocs(ctx, document.IDs(docs))
	if err != nil {
		t.Fatalf("FindDocs failed: %v", err)
	}
	requireSameSet(t, found, docs)

	// lookup of a subset in reversed order
	subset := []string{docs[7].ID, docs[3].ID, docs[1].ID}
	found, err = a.FindDocs(ctx, subset)
	if err != nil {
		t.Fatalf("FindDocs (subset) failed: %v", err)
	}
	requireSameSet(t, found, []document.Document{docs[1], docs[3], docs[7]})
}

func testOpaqueFields(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	doc := document.Document{
		ID:       "opaque-1",
		Age:      42,
		LongText: "text with \"quotes\", semicolons; and unicode äöü ✓",
		Nes:      document.Nested{Ted: -7},
		List:     []document.ListItem{{Value: "a"}, {Value: "b=c"}, {Value: ""}},
	}

	if err := a.WriteDocs(ctx, []document.Document{doc}); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	found, err := a.FindDocs(ctx, []string{doc.ID})
	if err != nil {
		t.Fatalf("FindDocs failed: %v", err)
	}
	requireSameSet(t, found, []document.Document{doc})
}

func testMissingIDs(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 5)

	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	found, err := a.FindDocs(ctx, []string{docs[0].ID, "does-not-exist"})
	switch a.Info().Missing {
	case adapter.MissingOmit:
		if err != nil {
			t.Fatalf("FindDocs failed: %v", err)
		}
		requireSameSet(t, found, docs[:1])
	case adapter.MissingError:
		if !adapter.IsCode(err, adapter.RetCNotFound) {
			t.Fatalf("Expected RetCNotFound error, got %v", err)
		}
	}
}

func testClear(t *testing.T, a adapter.Adapter) {
	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	docs := generate(t, 20)
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	// the instance must be usable again after a new Init
	ctx = setup(t, a)

	found, err := a.FindDocs(ctx, document.IDs(docs))
	if err != nil {
		if !adapter.IsCode(err, adapter.RetCNotFound) {
			t.Fatalf("FindDocs after Clear failed: %v", err)
		}
	} else if len(found) != 0 {
		t.Fatalf("Expected no documents after Clear, got %d", len(found))
	}

	all, err := a.QueryIndex(ctx, 0)
	if err != nil {
		t.Fatalf("QueryIndex after Clear failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("Expected empty store after Clear, got %d documents", len(all))
	}
}

func testInitIdempotent(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 10)
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	if err := a.Init(ctx); err != nil {
		t.Fatalf("Second Init failed: %v", err)
	}

	found, err := a.FindDocs(ctx, document.IDs(docs))
	if err != nil {
		t.Fatalf("FindDocs failed: %v", err)
	}
	requireSameSet(t, found, docs)
}

func testQueryIndex(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 200)
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	for _, minAge := range []int{0, 1, 33, 50, 99, 100, 101} {
		got, err := a.QueryIndex(ctx, minAge)
		if err != nil {
			t.Fatalf("QueryIndex(%d) failed: %v", minAge, err)
		}
		requireSameSet(t, got, bruteForce(docs, document.AgeQuery(minAge)))
	}
}

func testIntersection(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 300)
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	// two characters of random text hit a reasonable share of the documents
	patterns := []string{docs[0].LongText[10:12], docs[5].LongText[:3], "no-such-text"}
	for _, pattern := range patterns {
		regex, err := a.QueryRegex(ctx, pattern)
		if err != nil {
			t.Fatalf("QueryRegex(%q) failed: %v", pattern, err)
		}
		requireSameSet(t, regex, bruteForce(docs, document.TextQuery(document.Substring(pattern))))

		for _, minAge := range []int{0, 50, 90} {
			index, err := a.QueryIndex(ctx, minAge)
			if err != nil {
				t.Fatalf("QueryIndex(%d) failed: %v", minAge, err)
			}
			both, err := a.QueryRegexIndex(ctx, pattern, minAge)
			if err != nil {
				t.Fatalf("QueryRegexIndex(%q, %d) failed: %v", pattern, minAge, err)
			}

			// intersection of the two single-predicate results
			inRegex := make(map[string]bool, len(regex))
			for _, d := range regex {
				inRegex[d.ID] = true
			}
			var expected []document.Document
			for _, d := range index {
				if inRegex[d.ID] {
					expected = append(expected, d)
				}
			}
			requireSameSet(t, both, expected)
		}
	}
}

func testScenario(t *testing.T, a adapter.Adapter, zzzAge int) {
	ctx := setup(t, a)
	docs := []document.Document{
		{ID: "scenario-a", Age: zzzAge, LongText: "aaaa zzz aaaa"},
		{ID: "scenario-b", Age: 90, LongText: "bbbbbbbbbbbbb"},
		{ID: "scenario-c", Age: 75, LongText: "ccccccccccccc"},
	}
	// the first document must keep its age, the other two must be >= 50
	if zzzAge >= 50 {
		docs[2].Age = 10
	}
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	index, err := a.QueryIndex(ctx, 50)
	if err != nil {
		t.Fatalf("QueryIndex failed: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("Expected 2 documents with age >= 50, got %v", sortedIDs(index))
	}

	regex, err := a.QueryRegex(ctx, "zzz")
	if err != nil {
		t.Fatalf("QueryRegex failed: %v", err)
	}
	requireSameSet(t, regex, docs[:1])

	both, err := a.QueryRegexIndex(ctx, "zzz", 50)
	if err != nil {
		t.Fatalf("QueryRegexIndex failed: %v", err)
	}
	if zzzAge < 50 {
		requireSameSet(t, both, nil)
	} else {
		requireSameSet(t, both, docs[:1])
	}
}

func testDuplicates(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	original := document.Document{ID: "dup", Age: 1, LongText: "first"}
	replacement := document.Document{ID: "dup", Age: 99, LongText: "second"}

	if err := a.WriteDocs(ctx, []document.Document{original}); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	err := a.WriteDocs(ctx, []document.Document{replacement})

	found, findErr := a.FindDocs(ctx, []string{"dup"})
	if findErr != nil {
		t.Fatalf("FindDocs failed: %v", findErr)
	}

	switch a.Info().Duplicates {
	case adapter.DuplicateOverwrite:
		if err != nil {
			t.Fatalf("Expected overwrite, got error %v", err)
		}
		requireSameSet(t, found, []document.Document{replacement})
	case adapter.DuplicateReject:
		if !adapter.IsCode(err, adapter.RetCDuplicateID) {
			t.Fatalf("Expected RetCDuplicateID, got %v", err)
		}
		requireSameSet(t, found, []document.Document{original})
	}
}

func testMalformedPattern(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := []document.Document{{ID: "p1", Age: 5, LongText: "left a(b right"}}
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}

	got, err := a.QueryRegex(ctx, "a(b")
	switch matchMode(a) {
	case document.MatchSubstring:
		if err != nil {
			t.Fatalf("Substring adapters must accept any pattern, got %v", err)
		}
		requireSameSet(t, got, docs)
	case document.MatchRegex:
		if !adapter.IsCode(err, adapter.RetCQuery) {
			t.Fatalf("Expected RetCQuery for malformed pattern, got %v", err)
		}
	}
}

func testEmptyWrite(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	if err := a.WriteDocs(ctx, nil); err != nil {
		t.Fatalf("WriteDocs(nil) failed: %v", err)
	}
	all, err := a.QueryIndex(ctx, 0)
	if err != nil {
		t.Fatalf("QueryIndex failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("Expected empty store, got %d documents", len(all))
	}
}

func testConcurrentReads(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 100)
	if err := a.WriteDocs(ctx, docs); err != nil {
		t.Fatalf("WriteDocs failed: %v", err)
	}
	want := len(bruteForce(docs, document.AgeQuery(40)))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				got []document.Document
				err error
			)
			if i%2 == 0 {
				got, err = a.QueryIndex(ctx, 40)
			} else {
				got, err = a.FindDocs(ctx, document.IDs(docs))
				want := len(docs)
				if err == nil && len(got) != want {
					err = fmt.Errorf("FindDocs returned %d documents, expected %d", len(got), want)
				}
				errs <- err
				return
			}
			if err == nil && len(got) != want {
				err = fmt.Errorf("QueryIndex returned %d documents, expected %d", len(got), want)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func testMultipleBatches(t *testing.T, a adapter.Adapter) {
	ctx := setup(t, a)
	docs := generate(t, 90)

	for i := 0; i < len(docs); i += 30 {
		if err := a.WriteDocs(ctx, docs[i:i+30]); err != nil {
			t.Fatalf("WriteDocs (batch %d) failed: %v", i/30, err)
		}
	}

	all, err := a.QueryIndex(ctx, 0)
	if err != nil {
		t.Fatalf("QueryIndex failed: %v", err)
	}
	requireSameSet(t, all, docs)

	if got := strings.Join(sortedIDs(all), ","); got != strings.Join(sortedIDs(docs), ",") {
		t.Fatalf("Unexpected ids after batched writes")
	}
}
