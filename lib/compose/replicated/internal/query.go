package internal

import "github.com/pubkey/storagebench/lib/document"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet   QueryType = iota // Retrieve documents by id.
	QueryTScan                   // Retrieve all documents satisfying a query.
	QueryTCount                  // Number of stored documents.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTScan:
		return "Scan"
	case QueryTCount:
		return "Count"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type  QueryType      // The type of Query to perform.
	IDs   []string       // Ids for QueryTGet.
	Match document.Query // Predicate for QueryTScan.
}
