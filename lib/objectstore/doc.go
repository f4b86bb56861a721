// Package objectstore implements an ordered document object store on top of
// cockroachdb/pebble, in the manner of an IndexedDB object store with one index.
//
// Layout of the keyspace:
//
//	d/<id>                     primary record, value is the JSON document
//	a/<age (8 bytes)>/<id>     age index, value is the JSON document as well
//
// The age is encoded big-endian with the sign bit flipped, so the byte order of
// index keys equals the numeric order of ages, negative ages included. Storing the
// document in the index entry lets a range read serve documents without a second
// lookup per hit.
//
// Reads come in two flavours: Each/EachFromAge decode and hand out documents while
// the pebble iterator is open (cursor), All/AllFromAge copy the raw range into
// memory first and leave decoding to the caller (bulk).
package objectstore
