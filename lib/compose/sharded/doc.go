/*
Package sharded partitions documents across N child adapters.

A document belongs to shard (h >> 7) % N where h is the zero seeded FNV-1a hash of
its id, the same shard selection maple uses. Writes are split per shard and issued
concurrently. Every query fans out to all shards concurrently and the results are
merged. If any shard fails, the call fails with the joined shard errors and no
partial result is returned.

Children are usually in-process adapters, or worker proxies from rpc/client to
spread the shards across isolated workers.
*/
package sharded
