package adapter

import (
	"strings"
	"testing"

	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	docs := []document.Document{
		{ID: "a", Age: 10, LongText: "hello world"},
		{ID: "b", Age: 60, LongText: "hello there"},
		{ID: "c", Age: 90, LongText: "bye"},
	}

	got := Filter(docs, document.AgeQuery(50))
	assert.Equal(t, []string{"b", "c"}, document.IDs(got))

	got = Filter(docs, document.Query{Match: document.Substring("hello"), MinAge: 50})
	assert.Equal(t, []string{"b"}, document.IDs(got))

	got = Filter(docs, document.AgeQuery(100))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectIDs(t *testing.T) {
	docs := []document.Document{
		{ID: "a", Age: 1},
		{ID: "b", Age: 2},
		{ID: "a", Age: 3}, // later write wins
	}

	found, missing := SelectIDs(docs, []string{"a", "x", "b", "a"})
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].ID)
	assert.Equal(t, 3, found[0].Age)
	assert.Equal(t, "b", found[1].ID)
	assert.Equal(t, []string{"x"}, missing)
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery("docstore", OpQueryRegex, document.MatchRegex, "^he.*o$", 5)
	require.NoError(t, err)
	assert.True(t, q.Keep(&document.Document{Age: 5, LongText: "hello"}))
	assert.False(t, q.Keep(&document.Document{Age: 4, LongText: "hello"}))

	_, err = BuildQuery("docstore", OpQueryRegex, document.MatchRegex, "(", 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, RetCQuery))

	// substring matching accepts any pattern
	_, err = BuildQuery("idb", OpQueryRegex, document.MatchSubstring, "(", 0)
	assert.NoError(t, err)
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "bench", ResourceName("bench", false))

	a, b := ResourceName("bench", true), ResourceName("bench", true)
	assert.True(t, strings.HasPrefix(a, "bench-"))
	assert.NotEqual(t, a, b)
}

func TestFeatureString(t *testing.T) {
	assert.Equal(t, "None", Feature(0).String())
	assert.Equal(t, "NativeBatch|Persistent", (FeatureNativeBatch | FeaturePersistent).String())
	assert.True(t, (FeatureSharded | FeatureWorker).Has(FeatureWorker))
	assert.False(t, FeatureSharded.Has(FeatureSharded|FeatureWorker))
}

func TestOpQuery(t *testing.T) {
	young := &document.Document{Age: 1, LongText: "abc"}
	old := &document.Document{Age: 80, LongText: "xyz"}

	q, err := OpQuery("x", OpQueryIndex, document.MatchRegex, "(", 50)
	require.NoError(t, err, "QueryIndex ignores the pattern")
	assert.False(t, q.Keep(young))
	assert.True(t, q.Keep(old))

	q, err = OpQuery("x", OpQueryRegex, document.MatchSubstring, "abc", 50)
	require.NoError(t, err)
	assert.True(t, q.Keep(young), "QueryRegex ignores the age")

	q, err = OpQuery("x", OpQueryRegexIndex, document.MatchSubstring, "abc", 50)
	require.NoError(t, err)
	assert.False(t, q.Keep(young))
	assert.False(t, q.Keep(old))
}
