// Package document defines the record shape shared by every storage backend,
// the predicates a query may evaluate against it and a generator for test data.
//
// A Document carries exactly two queryable fields:
//
//   - Age: the only range-queryable field (age >= minAge)
//   - LongText: the only text-searchable field (substring or regular expression)
//
// All other fields (Nes, List) are stored opaquely and must round-trip unchanged.
//
// Matching semantics are not universal. A backend either matches plain substrings
// (MatchSubstring) or full regular expressions (MatchRegex) and reports which one
// through its adapter info. NewMatcher builds the predicate for a given mode.
package document
