package document

import (
	"math"
	"strconv"
	"strings"
)

// Document is a single benchmark record.
// The ID is assigned by the caller and is never generated by a store.
type Document struct {
	ID       string     `json:"id"`
	Age      int        `json:"age"`
	LongText string     `json:"longtext"`
	Nes      Nested     `json:"nes"`
	List     []ListItem `json:"list"`
}

// Nested is the fixed-shape nested object of a Document.
type Nested struct {
	Ted int `json:"ted"`
}

// ListItem is one element of Document.List.
type ListItem struct {
	Value string `json:"value"`
}

// NoAgeBound is the MinAge value of a Query that accepts every age.
const NoAgeBound = math.MinInt

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	c := *d
	if d.List != nil {
		c.List = make([]ListItem, len(d.List))
		copy(c.List, d.List)
	}
	return c
}

// Equal reports whether both documents carry the same data.
// A nil and an empty List are treated as equal.
func (d *Document) Equal(o *Document) bool {
	if d.ID != o.ID || d.Age != o.Age || d.LongText != o.LongText || d.Nes != o.Nes {
		return false
	}
	if len(d.List) != len(o.List) {
		return false
	}
	for i := range d.List {
		if d.List[i] != o.List[i] {
			return false
		}
	}
	return true
}

// IDs returns the ids of the given documents in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	return ids
}

// --------------------------------------------------------------------------
// Query
// --------------------------------------------------------------------------

// Query is the conjunction of an optional text predicate and an age lower bound.
// A nil Match accepts every text, NoAgeBound accepts every age.
type Query struct {
	Match  Matcher
	MinAge int
}

// AgeQuery returns a query with only an age lower bound.
func AgeQuery(minAge int) Query {
	return Query{MinAge: minAge}
}

// TextQuery returns a query with only a text predicate.
func TextQuery(m Matcher) Query {
	return Query{Match: m, MinAge: NoAgeBound}
}

// Keep reports whether the document satisfies the query.
// The age bound is evaluated first, the text predicate second.
func (q Query) Keep(d *Document) bool {
	if d.Age < q.MinAge {
		return false
	}
	return q.Match == nil || q.Match.Match(d.LongText)
}

// HasAgeBound reports whether the query restricts the age at all.
func (q Query) HasAgeBound() bool {
	return q.MinAge != NoAgeBound
}

// String renders the query for log output.
func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString("query{")
	if q.HasAgeBound() {
		sb.WriteString("age>=")
		sb.WriteString(strconv.Itoa(q.MinAge))
	}
	if q.Match != nil {
		if q.HasAgeBound() {
			sb.WriteString(" && ")
		}
		sb.WriteString(q.Match.String())
	}
	sb.WriteString("}")
	return sb.String()
}
