// Package tools defines tool contracts and the reference read-only SQL tools.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Registry: the executor used by the loop; validates input against each
//     tool's schema, rate-limits and bounds calls, and maps every failure to
//     a failed outcome.
//   - SQL tools: list_schemas, list_tables, describe_table, run_query.
package tools
