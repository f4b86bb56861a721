package adapter

import (
	"github.com/google/uuid"
	"github.com/pubkey/storagebench/lib/document"
)

// Operation names used in errors, logs and metrics.
const (
	OpInit            = "Init"
	OpWriteDocs       = "WriteDocs"
	OpFindDocs        = "FindDocs"
	OpQueryRegex      = "QueryRegex"
	OpQueryIndex      = "QueryIndex"
	OpQueryRegexIndex = "QueryRegexIndex"
	OpClear           = "Clear"
)

// Filter returns the documents of docs that satisfy q.
// It is the tight loop of every full-scan backend.
func Filter(docs []document.Document, q document.Query) []document.Document {
	result := make([]document.Document, 0)
	for i := range docs {
		if q.Keep(&docs[i]) {
			result = append(result, docs[i])
		}
	}
	return result
}

// SelectIDs returns the documents of docs whose id is in ids, each id at most once.
// Later documents with the same id win, matching append-style storage.
// The second return value lists the ids that were not found.
func SelectIDs(docs []document.Document, ids []string) ([]document.Document, []string) {
	wanted := make(map[string]int, len(ids))
	for _, id := range ids {
		wanted[id] = -1
	}
	for i := range docs {
		if _, ok := wanted[docs[i].ID]; ok {
			wanted[docs[i].ID] = i
		}
	}

	result := make([]document.Document, 0, len(ids))
	var missing []string
	for _, id := range ids {
		pos, ok := wanted[id]
		if !ok {
			continue // already handled duplicate id in the request
		}
		delete(wanted, id)
		if pos < 0 {
			missing = append(missing, id)
			continue
		}
		result = append(result, docs[pos])
	}
	return result, missing
}

// BuildQuery compiles pattern with the given mode and combines it with minAge.
// A malformed pattern yields a RetCQuery error attributed to adapter and op.
func BuildQuery(adapter, op string, mode document.MatchMode, pattern string, minAge int) (document.Query, error) {
	m, err := document.NewMatcher(mode, pattern)
	if err != nil {
		return document.Query{}, NewError(RetCQuery, adapter, op, err)
	}
	return document.Query{Match: m, MinAge: minAge}, nil
}

// ResourceName returns the name of the persisted resource of an adapter.
// With randomize set a random suffix avoids collisions between instances
// registered in the same run.
func ResourceName(name string, randomize bool) string {
	if !randomize {
		return name
	}
	return name + "-" + uuid.NewString()
}

// OpQuery builds the query of a read operation: QueryIndex carries no text
// predicate, QueryRegex no age bound and QueryRegexIndex both.
func OpQuery(adapter, op string, mode document.MatchMode, pattern string, minAge int) (document.Query, error) {
	switch op {
	case OpQueryIndex:
		return document.AgeQuery(minAge), nil
	case OpQueryRegex:
		return BuildQuery(adapter, op, mode, pattern, document.NoAgeBound)
	default:
		return BuildQuery(adapter, op, mode, pattern, minAge)
	}
}
