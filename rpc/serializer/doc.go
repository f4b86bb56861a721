// Package serializer turns the envelopes exchanged between a worker proxy and its
// executor into frame payloads and back.
//
// Three implementations share the IRPCSerializer interface, ByName selects one
// by its flag value:
//
//   - binary (default): a flag byte marks which envelope fields are present, each
//     document is written field by field with big-endian length prefixes. Smallest
//     payloads and no reflection.
//
//   - json: human readable, handy when tracing a worker over stdio. The message
//     type is encoded by name.
//
//   - gob: the stdlib gob encoding. Every payload carries its type information,
//     so batches of small documents are noticeably larger.
//
// See benchmark_test.go for a comparison on generated document batches.
//
// All implementations are stateless and may be shared between goroutines.
// Deserialize resets the target message before decoding, so a message value can be
// reused for every frame of a connection:
//
//	ser, _ := serializer.ByName("binary")
//	payload, err := ser.Serialize(*common.NewResponse(common.MsgTFindDocs, docs, nil))
//	...
//	var msg common.Message
//	err = ser.Deserialize(payload, &msg)
package serializer
