// Package fileops provides the file operation tools: reading, writing,
// deleting, searching, listing and line-range replacement. Every path is resolved
// against the project root through a guard.PathPolicy; writes are rejected
// before any filesystem access when the policy denies them.
package fileops

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
)

// Options bounds the file tools.
type Options struct {
	// MaxReadBytes caps files returned by read_file. 0 disables the cap.
	MaxReadBytes int64
	// MaxSearchResults caps the matches reported by search_files.
	MaxSearchResults int
	// MaxSearchFileBytes skips larger files during search.
	MaxSearchFileBytes int64
}

// ErrBadPattern is returned for glob patterns that are absolute or leave the
// project root.
var ErrBadPattern = errors.New("invalid glob pattern")

type fileTools struct {
	policy *guard.PathPolicy
	opts   Options
}

// Tools returns the file operation tools bound to policy.
func Tools(policy *guard.PathPolicy, optFns ...func(o *Options)) []tool.Tool {
	opts := Options{
		MaxReadBytes:       5 << 20,
		MaxSearchResults:   200,
		MaxSearchFileBytes: 1 << 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ft := &fileTools{policy: policy, opts: opts}

	return []tool.Tool{
		tool.NewFunctionTool("read_file",
			`Read the contents of a file. Optionally specify line ranges (e.g., "1-50, 100-150").`,
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":  map[string]any{"type": "string", "description": "Path to the file relative to project root"},
					"lines": map[string]any{"type": "string", "description": `Optional line ranges to read (e.g., "1-50, 100-150")`},
				},
				"required": []string{"path"},
			},
			ft.readFile,
		),
		tool.NewFunctionTool("write_file",
			"Write content to a file. Creates the file and parent directories if they don't exist. Only paths under the writable root are allowed.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Path to the file relative to project root"},
					"content": map[string]any{"type": "string", "description": "Content to write to the file"},
				},
				"required": []string{"path", "content"},
			},
			ft.writeFile,
		).WithPathKey("path"),
		tool.NewFunctionTool("search_files",
			"Search for text patterns using regex across multiple files.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":           map[string]any{"type": "string", "description": "Regex pattern to search for"},
					"include_pattern": map[string]any{"type": "string", "description": `Glob pattern for files to include (e.g., "**/*.go")`},
					"exclude_pattern": map[string]any{"type": "string", "description": "Optional glob pattern for files to exclude"},
					"case_sensitive":  map[string]any{"type": "boolean", "description": "Whether search should be case sensitive (default: false)"},
				},
				"required": []string{"query", "include_pattern"},
			},
			ft.searchFiles,
		),
		tool.NewFunctionTool("list_directory",
			"List all files and directories in a given path.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path to the directory relative to project root"},
				},
				"required": []string{"path"},
			},
			ft.listDirectory,
		),
		tool.NewFunctionTool("line_replace",
			"Replace specific lines in a file with new content. The search text must occur within the replaced lines.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path":           map[string]any{"type": "string", "description": "Path to the file"},
					"search":              map[string]any{"type": "string", "description": "Content expected within the replaced lines (for validation)"},
					"first_replaced_line": map[string]any{"type": "integer", "description": "First line number to replace (1-indexed)"},
					"last_replaced_line":  map[string]any{"type": "integer", "description": "Last line number to replace (1-indexed)"},
					"replace":             map[string]any{"type": "string", "description": "New content to replace with"},
				},
				"required": []string{"file_path", "search", "first_replaced_line", "last_replaced_line", "replace"},
			},
			ft.lineReplace,
		).WithPathKey("file_path"),
		tool.NewFunctionTool("delete_file",
			"Delete a file. Only files under the writable root can be deleted; directories are refused.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path to the file relative to project root"},
				},
				"required": []string{"path"},
			},
			ft.deleteFile,
		).WithPathKey("path"),
		tool.NewFunctionTool("get_repo_structure",
			"Get a tree view of the project with file types and sizes. Useful to see what exists before making changes.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_depth": map[string]any{"type": "integer", "description": "Maximum directory depth to explore (default: 3, max: 5)"},
				},
			},
			ft.repoStructure,
		),
		tool.NewFunctionTool("check_files_exist",
			"Check if multiple files exist without reading their contents. Returns a map of paths to existence.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"paths": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": `Paths relative to project root (e.g., ["go.mod", "src/main.go"])`,
					},
				},
				"required": []string{"paths"},
			},
			ft.checkFilesExist,
		),
	}
}

func (ft *fileTools) readFile(tc *core.ToolContext, args map[string]any) (string, error) {
	abs, err := ft.policy.CheckRead(tool.StringArg(args, "path"))
	if err != nil {
		return "", tool.GuardrailError("read_file", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("failed to read file: %s is a directory", tool.StringArg(args, "path"))
	}

	if ft.opts.MaxReadBytes > 0 && info.Size() > ft.opts.MaxReadBytes {
		return "", fmt.Errorf("failed to read file: %d bytes exceeds the %d byte limit; use line ranges", info.Size(), ft.opts.MaxReadBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	spec := tool.StringArg(args, "lines")
	if strings.TrimSpace(spec) == "" {
		return string(data), nil
	}

	ranges, err := ParseLineRanges(spec)
	if err != nil {
		return "", err
	}

	return selectLines(string(data), ranges), nil
}

func (ft *fileTools) writeFile(tc *core.ToolContext, args map[string]any) (string, error) {
	rel := tool.StringArg(args, "path")

	abs, err := ft.policy.CheckWrite(rel)
	if err != nil {
		tc.Logger().Warn("fileops.write.rejected", "path", rel, "error", err.Error())
		return "", tool.GuardrailError("write_file", err)
	}

	content := tool.StringArg(args, "content")

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), rel), nil
}

// Match is one search_files hit.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (ft *fileTools) searchFiles(tc *core.ToolContext, args map[string]any) (string, error) {
	query := tool.StringArg(args, "query")
	include := tool.StringArg(args, "include_pattern")
	exclude := tool.StringArg(args, "exclude_pattern")

	if !tool.BoolArg(args, "case_sensitive", false) {
		query = "(?i)" + query
	}

	re, err := regexp.Compile(query)
	if err != nil {
		return "", fmt.Errorf("invalid regex: %w", err)
	}

	for _, p := range []string{include, exclude} {
		if p == "" {
			continue
		}

		if err := validatePattern(p); err != nil {
			return "", tool.GuardrailError("search_files", err)
		}
	}

	files, err := doublestar.Glob(os.DirFS(ft.policy.Root()), include, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("failed to search files: %w", err)
	}

	sort.Strings(files)

	var (
		matches   []Match
		truncated bool
	)

	for _, file := range files {
		if exclude != "" {
			if skip, _ := doublestar.Match(exclude, file); skip {
				continue
			}
		}

		if tc.Context().Err() != nil {
			return "", tc.Context().Err()
		}

		found, full := ft.grep(file, re, ft.opts.MaxSearchResults-len(matches))
		matches = append(matches, found...)

		if full {
			truncated = true
			break
		}
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for %q in %s", tool.StringArg(args, "query"), include), nil
	}

	out, err := tool.JSONResult(matches)
	if err != nil {
		return "", err
	}

	if truncated {
		out += fmt.Sprintf("\n\n(results limited to %d matches)", ft.opts.MaxSearchResults)
	}

	return out, nil
}

// grep scans one file (slash path relative to root). full reports that the
// remaining budget was used up.
func (ft *fileTools) grep(rel string, re *regexp.Regexp, budget int) ([]Match, bool) {
	abs := filepath.Join(ft.policy.Root(), filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil || (ft.opts.MaxSearchFileBytes > 0 && info.Size() > ft.opts.MaxSearchFileBytes) {
		return nil, false
	}

	data, err := os.ReadFile(abs)
	if err != nil || bytes.IndexByte(data, 0) >= 0 {
		return nil, false
	}

	var out []Match

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)

	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if !re.MatchString(line) {
			continue
		}

		if len(out) >= budget {
			return out, true
		}

		out = append(out, Match{File: rel, Line: n, Content: strings.TrimSpace(line)})
	}

	return out, false
}

// Entry is one list_directory item.
type Entry struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (ft *fileTools) listDirectory(tc *core.ToolContext, args map[string]any) (string, error) {
	abs, err := ft.policy.CheckRead(tool.StringArg(args, "path"))
	if err != nil {
		return "", tool.GuardrailError("list_directory", err)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	items := make([]Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}

		typ := "file"
		if de.IsDir() {
			typ = "directory"
		} else if de.Type()&fs.ModeSymlink != 0 {
			typ = "symlink"
		}

		items = append(items, Entry{Name: de.Name(), Type: typ, Size: info.Size(), Modified: info.ModTime().UTC()})
	}

	return tool.JSONResult(items)
}

func (ft *fileTools) lineReplace(tc *core.ToolContext, args map[string]any) (string, error) {
	rel := tool.StringArg(args, "file_path")

	abs, err := ft.policy.CheckWrite(rel)
	if err != nil {
		tc.Logger().Warn("fileops.write.rejected", "path", rel, "error", err.Error())
		return "", tool.GuardrailError("line_replace", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to replace lines: %w", err)
	}

	first := tool.IntArg(args, "first_replaced_line", 0)
	last := tool.IntArg(args, "last_replaced_line", 0)

	updated, err := ReplaceLines(string(data), first, last, tool.StringArg(args, "search"), tool.StringArg(args, "replace"))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to replace lines: %w", err)
	}

	if err := os.WriteFile(abs, []byte(updated), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to replace lines: %w", err)
	}

	return fmt.Sprintf("Replaced lines %d-%d in %s", first, last, rel), nil
}

func (ft *fileTools) deleteFile(tc *core.ToolContext, args map[string]any) (string, error) {
	rel := tool.StringArg(args, "path")

	abs, err := ft.policy.CheckWrite(rel)
	if err != nil {
		tc.Logger().Warn("fileops.delete.rejected", "path", rel, "error", err.Error())
		return "", tool.GuardrailError("delete_file", err)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("failed to delete file: %s is a directory", rel)
	}

	if err := os.Remove(abs); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}

	tc.Logger().Info("fileops.delete", "path", rel)

	return fmt.Sprintf("Deleted %s", rel), nil
}

const (
	defaultTreeDepth = 3
	maxTreeDepth     = 5
)

// TreeNode is one get_repo_structure entry. Path is slash separated and
// relative to the project root.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"`
	Size     int64       `json:"size,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// skippedDirs are not descended into by get_repo_structure.
var skippedDirs = map[string]struct{}{".git": {}, "node_modules": {}}

func (ft *fileTools) repoStructure(tc *core.ToolContext, args map[string]any) (string, error) {
	depth := tool.IntArg(args, "max_depth", defaultTreeDepth)
	if depth < 1 {
		depth = defaultTreeDepth
	}

	depth = min(depth, maxTreeDepth)

	root := ft.policy.Root()

	children, err := buildTree(root, "", depth)
	if err != nil {
		return "", fmt.Errorf("failed to build repository structure: %w", err)
	}

	return tool.JSONResult(&TreeNode{Name: filepath.Base(root), Path: "", Type: "dir", Children: children})
}

func buildTree(root, rel string, depth int) ([]*TreeNode, error) {
	if depth <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}

	nodes := make([]*TreeNode, 0, len(entries))

	for _, de := range entries {
		node := &TreeNode{Name: de.Name(), Path: path.Join(rel, de.Name()), Type: "file"}

		if de.IsDir() {
			node.Type = "dir"

			if _, skip := skippedDirs[de.Name()]; !skip {
				if node.Children, err = buildTree(root, node.Path, depth-1); err != nil {
					return nil, err
				}
			}
		} else if info, err := de.Info(); err == nil {
			node.Size = info.Size()
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

func (ft *fileTools) checkFilesExist(tc *core.ToolContext, args map[string]any) (string, error) {
	paths := tool.StringSliceArg(args, "paths")
	if len(paths) == 0 {
		return "", &tool.ValidationError{Field: "paths", Message: "must contain at least one path"}
	}

	exists := make(map[string]bool, len(paths))

	for _, p := range paths {
		abs, err := ft.policy.CheckRead(p)
		if err != nil {
			exists[p] = false
			continue
		}

		info, err := os.Stat(abs)
		exists[p] = err == nil && !info.IsDir()
	}

	return tool.JSONResult(exists)
}

// LineRange is an inclusive 1-indexed range.
type LineRange struct {
	Start, End int
}

// ParseLineRanges parses "1-10, 20-30, 42".
func ParseLineRanges(spec string) ([]LineRange, error) {
	var ranges []LineRange

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		startStr, endStr, isRange := strings.Cut(part, "-")

		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, fmt.Errorf("invalid line range %q", part)
		}

		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(endStr)); err != nil {
				return nil, fmt.Errorf("invalid line range %q", part)
			}
		}

		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid line range %q", part)
		}

		ranges = append(ranges, LineRange{Start: start, End: end})
	}

	if len(ranges) == 0 {
		return nil, fmt.Errorf("invalid line range %q", spec)
	}

	return ranges, nil
}

func selectLines(content string, ranges []LineRange) string {
	lines := strings.Split(content, "\n")

	var out []string

	for _, r := range ranges {
		if r.Start > len(lines) {
			continue
		}

		end := min(r.End, len(lines))
		out = append(out, lines[r.Start-1:end]...)
	}

	return strings.Join(out, "\n")
}

// ReplaceLines swaps lines first..last (1-indexed, inclusive) of content for
// replacement after checking that search occurs in the replaced block.
func ReplaceLines(content string, first, last int, search, replacement string) (string, error) {
	lines := strings.Split(content, "\n")

	if first < 1 || last < first || last > len(lines) {
		return "", fmt.Errorf("invalid line range: %d-%d (file has %d lines)", first, last, len(lines))
	}

	block := strings.Join(lines[first-1:last], "\n")
	if search != "" && !strings.Contains(block, search) {
		return "", fmt.Errorf("search text not found in lines %d-%d", first, last)
	}

	out := make([]string, 0, len(lines)-(last-first+1)+1)
	out = append(out, lines[:first-1]...)
	out = append(out, replacement)
	out = append(out, lines[last:]...)

	return strings.Join(out, "\n"), nil
}

func validatePattern(p string) error {
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return fmt.Errorf("%w: %q must be relative to the project root", ErrBadPattern, p)
	}

	for _, seg := range strings.Split(path.Clean(p), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q leaves the project root", ErrBadPattern, p)
		}
	}

	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("%w: %q", ErrBadPattern, p)
	}

	return nil
}
