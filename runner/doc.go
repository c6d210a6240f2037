// Package runner manages the lifecycle of orchestration runs on top of a
// flow.Loop.
//
// # Responsibilities
//   - Bounding how many runs execute at once
//   - Tracking active runs so they can be cancelled by id
//   - Persisting each finished run as a session.Transcript
//
// A Runner is safe for concurrent use; every call to Run owns its own
// core.RunContext inside the loop.
package runner
