// Package memory provides append-only conversation message stores.
//
// Persistence model:
//   - Messages are flat rows ordered by a per-conversation Sequence.
//   - Tool rows carry ToolName and ToolInput; ToolOutput is set once the call ran.
//   - Sequence assignment is serialized per conversation by every Store.
//
// Implementations: InMemory (tests, ephemeral CLI sessions), FileStore (one
// JSON file per conversation) and SQLiteStore (modernc.org/sqlite).
package memory
