// Package store provides execution registry implementations. The
// ExecutionStore interface lives in the parent chatflow package to avoid
// import cycles between the chatflow and store packages.
//
// Two implementations are provided:
//   - MemoryStore: in-process registry; executions accumulate for the
//     process lifetime
//   - DynamoDBStore: durable AWS DynamoDB backend with optional TTL-based
//     retention
//
// Both follow the single-table schema defined in schema.go.
package store
