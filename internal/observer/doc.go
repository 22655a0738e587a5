// Package observer provides async event dispatch around engine operations:
// an ordered list of sinks invoked off the request path through a buffered
// dispatcher with drop accounting.
//
// # Architecture boundaries
//
// This package owns event buffering and fan-out ordering. It does NOT decide
// which operations emit events or what they contain — the Engine does.
//
// # What this package must NOT do
//
//   - Block an engine operation on a slow sink (unless DropIfFull is off and
//     the caller's context allows it).
//   - Carry secret material in event fields.
package observer
