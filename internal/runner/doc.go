// Package runner drives one user turn to completion: it streams a model
// invocation, executes the tool calls it requests, feeds the results back and
// repeats until the model answers without tools.
//
// States:
//   - Dispatching: range over one adapter stream, forwarding deltas and
//     tool calls to the sink.
//   - Executing: run the collected calls in declaration order, persist one
//     tool row each and append the call/result turns to the transcript.
//   - Finalizing: persist the concatenated deltas as the assistant message
//     and emit done, or forward an error.
//
// Invariant:
//   - an assistant turn declaring N calls is followed by exactly N tool turns
//     before the next dispatch.
//
// Flow:
//
//	user(text) -> assistant(tool_call...) -> tool(result...) -> assistant(text)
package runner
