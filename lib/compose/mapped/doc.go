// Package mapped puts a write-behind memory layer in front of another adapter.
//
// Init loads every document of the underlying adapter into a docstore.MemoryEngine.
// Reads are served from memory only. Writes go to memory and to a pending buffer
// which is committed to the underlying adapter in one WriteDocs call once it holds
// FlushThreshold documents, on Flush and on Close. Documents still pending when
// the process dies are lost.
package mapped
