package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryKeep(t *testing.T) {
	doc := Document{ID: "a", Age: 60, LongText: "hello zzz world"}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"match all", Query{MinAge: NoAgeBound}, true},
		{"age below bound", AgeQuery(61), false},
		{"age at bound", AgeQuery(60), true},
		{"text hit", TextQuery(Substring("zzz")), true},
		{"text miss", TextQuery(Substring("yyy")), false},
		{"both hit", Query{Match: Substring("zzz"), MinAge: 50}, true},
		{"age miss text hit", Query{Match: Substring("zzz"), MinAge: 70}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Keep(&doc))
		})
	}
}

func TestNewMatcher(t *testing.T) {
	sub, err := NewMatcher(MatchSubstring, "a(b")
	require.NoError(t, err)
	assert.True(t, sub.Match("xa(by"))
	assert.False(t, sub.Match("ab"))

	re, err := NewMatcher(MatchRegex, "^ab+c$")
	require.NoError(t, err)
	assert.True(t, re.Match("abbbc"))
	assert.False(t, re.Match("xabc"))
	assert.Equal(t, "^ab+c$", re.Pattern())

	_, err = NewMatcher(MatchRegex, "a(b")
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{ID: "a", List: []ListItem{{Value: "x"}}}
	c := doc.Clone()
	c.List[0].Value = "y"

	assert.Equal(t, "x", doc.List[0].Value)
	assert.False(t, doc.Equal(&c))
}

func TestEqualNilAndEmptyList(t *testing.T) {
	a := Document{ID: "a"}
	b := Document{ID: "a", List: []ListItem{}}
	assert.True(t, a.Equal(&b))
}
