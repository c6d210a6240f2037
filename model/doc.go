// Package model defines the provider-agnostic contract between the
// orchestration loop and a language model, plus a scripted implementation for
// tests.
//
// Core goals:
//   - One synchronous Generate call per loop iteration
//   - Normalized stop reasons (end_turn, tool_use, max_tokens, other)
//   - Tool declarations and tool calls expressed with core types
//   - Usage reported per call, including prompt cache tokens
//
// Providers (Anthropic, OpenAI) live in sub-packages so the loop stays
// decoupled from vendor SDKs.
package model
