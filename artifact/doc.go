// Package artifact contains concrete implementations of core.ArtifactStore.
//
// Artifacts are binary outputs of tool calls (browser screenshots, synthesized
// speech) that are too large or too binary to send back to the model. Tools
// save them through core.ToolContext and return an artifact:// reference; the
// HTTP server exposes them under /api/artifacts/{run_id}/{id}.
package artifact
