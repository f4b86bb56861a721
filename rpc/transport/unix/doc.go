// Package unix implements the worker transport over Unix domain sockets,
// for workers running as a separate process on the same machine.
//
// Both sides use the frame format of the base package.
//
// Performance Characteristics:
//
//   - Default buffer size: 64 KB, optimized for local communication patterns
//   - Reduced overhead: Eliminates TCP/IP stack processing for better performance
package unix
