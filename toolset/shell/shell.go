// Package shell exposes command execution to the model through a
// guard.Runner. The allow-list, deny-list, timeout and output cap are all
// enforced by the runner; this package only adapts inputs and outputs.
// list_commits is a structured view over git log run the same way.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
)

// Tools returns the execute_command tool bound to runner.
func Tools(runner *guard.Runner) []tool.Tool {
	desc := fmt.Sprintf(`Execute a shell command in the project workspace.
Security restrictions:
- Only allow-listed commands: %s
- Dangerous operations are blocked (rm -rf, sudo, etc.)
- Commands time out and output is capped
- Commands run in the workspace directory; paths and redirects must stay inside it
Use this for installing packages, running scripts, git operations and file listing.`,
		strings.Join(runner.Policy().Allowed(), ", "))

	return []tool.Tool{
		tool.NewFunctionTool("execute_command", desc,
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string", "description": "Shell command to execute"},
					"cwd":     map[string]any{"type": "string", "description": "Optional working directory relative to the workspace"},
				},
				"required": []string{"command"},
			},
			func(tc *core.ToolContext, args map[string]any) (string, error) {
				return execute(tc, runner, args)
			},
		),
		tool.NewFunctionTool("list_commits",
			"List recent git commits in the workspace, newest first. Optionally limit to commits touching a path.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":  map[string]any{"type": "string", "description": "Optional file or directory relative to the workspace"},
					"limit": map[string]any{"type": "integer", "description": "Maximum commits to return (default: 20, max: 100)"},
				},
			},
			func(tc *core.ToolContext, args map[string]any) (string, error) {
				return listCommits(tc, runner, args)
			},
		),
	}
}

const (
	defaultCommitLimit = 20
	maxCommitLimit     = 100
	fieldSep           = "\x1f"
)

// Commit is one list_commits entry.
type Commit struct {
	SHA     string `json:"sha"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

func listCommits(tc *core.ToolContext, runner *guard.Runner, args map[string]any) (string, error) {
	limit := tool.IntArg(args, "limit", defaultCommitLimit)
	if limit < 1 {
		limit = defaultCommitLimit
	}

	limit = min(limit, maxCommitLimit)

	command := fmt.Sprintf("git log --max-count=%d --date=iso-strict --pretty=format:%%H%%x1f%%an%%x1f%%ad%%x1f%%s", limit)
	if p := strings.TrimSpace(tool.StringArg(args, "path")); p != "" {
		command += " -- " + shellQuote(p)
	}

	out, err := runner.Run(tc.Context(), command)
	if err != nil {
		if isGuardrail(err) {
			return "", tool.GuardrailError("list_commits", err)
		}

		if out == nil {
			return "", err
		}

		return "", fmt.Errorf("%s", strings.TrimSpace(fmt.Sprintf("git log failed: %v\n%s", err, out.Stderr)))
	}

	commits := parseCommits(out.Stdout)
	if len(commits) == 0 {
		return "No commits found", nil
	}

	return tool.JSONResult(commits)
}

func parseCommits(raw string) []Commit {
	var commits []Commit

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}

		commits = append(commits, Commit{SHA: parts[0], Author: parts[1], Date: parts[2], Message: parts[3]})
	}

	return commits
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func execute(tc *core.ToolContext, runner *guard.Runner, args map[string]any) (string, error) {
	command := tool.StringArg(args, "command")

	out, err := runner.RunIn(tc.Context(), tool.StringArg(args, "cwd"), command)
	if err != nil {
		if isGuardrail(err) {
			return "", tool.GuardrailError("execute_command", err)
		}

		if out == nil {
			return "", err
		}

		return "", fmt.Errorf("%s", strings.TrimSpace(fmt.Sprintf("Command failed: %v\n%s\n%s", err, out.Stderr, out.Stdout)))
	}

	result := strings.TrimSpace(out.Stdout)
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		result = strings.TrimSpace(result + "\n[stderr]\n" + stderr)
	}

	if result == "" {
		return "(command completed with no output)", nil
	}

	return result, nil
}

func isGuardrail(err error) bool {
	for _, target := range []error{
		guard.ErrEmptyCommand,
		guard.ErrCommandNotAllowed,
		guard.ErrDangerousCommand,
		guard.ErrPathEscapesRoot,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
