// Package common provides the data structures shared by the worker protocol:
// the message envelope, the configuration of the commands and the logger.
//
// Key Components:
//
//   - Message: the envelope of every call and reply exchanged between a proxy
//     and a worker. Which fields are set depends on the MessageType. The
//     correlation id is not part of the message, it travels in the frame header.
//
//   - Request: the closed set of call variants (InitRequest, WriteDocsRequest, ...).
//     Message.Request decodes the variant so executors dispatch with a type switch
//     instead of comparing operation names.
//
//   - WorkerConfig and BenchConfig: configuration of the worker and bench
//     commands, with String renderers for startup output.
//
//   - Logger: custom logging implementation for the dragonboat logger facade,
//     giving every package the same line format. The output stream can be
//     redirected, a worker serving over stdio logs to stderr.
package common
