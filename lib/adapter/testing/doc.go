// Package testing provides the standardised conformance tests and benchmarks for
// implementations of the adapter.Adapter contract.
//
// Every adapter package runs the suite against its own factory:
//
//	func Test(t *testing.T) {
//		adaptertesting.RunAdapterTests(t, "idb-cursor", func() adapter.Adapter {
//			return idb.NewCursor(idb.Options{Name: "idb-cursor", InMemory: true})
//		})
//	}
//
// The suite reads adapter.Info to decide which documented behavior to expect for
// duplicate ids, missing ids and malformed query patterns.
package testing
