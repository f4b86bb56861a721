// Package stdio runs a worker as a child process and talks to it over the
// child's stdin and stdout. The child's stderr is passed through, so worker log
// lines never mix with frames.
//
// Spawn starts the child on the proxy side, ServerConn frames the own stdin and
// stdout on the worker side.
package stdio
