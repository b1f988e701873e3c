// Package chat defines the vendor-neutral vocabulary shared by provider
// adapters, the orchestration loop and the client bridge.
//
// Event kinds:
//   - delta: a fragment of assistant text, order-significant.
//   - tool_call: a fully reassembled tool invocation.
//   - done: terminal for one adapter invocation.
//   - error: terminal, aborts the enclosing turn.
//
// Every adapter invocation produces exactly one terminal event and nothing after it.
package chat
