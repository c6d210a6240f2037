// Package guard implements the guardrails consulted before any filesystem or
// command tool is allowed to act.
//
// PathPolicy splits the project tree into protected prefixes (read-only) and a
// single writable root. CommandPolicy gates shell commands through a deny-list,
// dangerous substring patterns and an allow-list. Runner executes a permitted
// command inside the writable root, bounded by a timeout and an output cap.
package guard
