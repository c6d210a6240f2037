// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing transcripts (messages, tool calls and run
// results). They are not intended for production usage.
package testutil
