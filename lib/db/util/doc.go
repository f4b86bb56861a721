// Package util provides utility components shared by the storage engines.
//
// The package contains:
//   - statistics: summary statistics, shard distribution quality and a SizeHistogram
//     used to estimate memory footprints without full scans
//   - functions: the seeded FNV-1a string hash used for sharding and random seeds
//   - mailbox: an unbounded lock-free multi-producer single-consumer queue, the
//     in-process worker channel delivers frames through it
package util
