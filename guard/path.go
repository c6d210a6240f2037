package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultWritableRoot is the only subtree tools may create or modify files in.
const DefaultWritableRoot = "workspace/"

// DefaultProtectedPaths are prefixes the model may read but never write.
var DefaultProtectedPaths = []string{
	"src/",
	"cmd/",
	"internal/",
	"supabase/",
	"memoria/",
	"go.mod",
	"go.sum",
	"package.json",
	"package-lock.json",
	".env",
	".git/",
	"node_modules/",
}

// PathPolicyOptions configures a PathPolicy.
type PathPolicyOptions struct {
	// Protected lists read-only prefixes relative to the project root. A
	// trailing slash marks a directory.
	Protected []string
	// WritableRoot is the single writable prefix relative to the project root.
	WritableRoot string
}

// PathPolicy decides which paths tools may read and write. All paths are
// interpreted relative to the project root; absolute paths are accepted when
// they lie inside it.
type PathPolicy struct {
	root         string
	protected    []string
	writableRoot string
}

// NewPathPolicy resolves root (which must be an existing directory) and
// builds a policy over it.
func NewPathPolicy(root string, optFns ...func(o *PathPolicyOptions)) (*PathPolicy, error) {
	opts := PathPolicyOptions{
		Protected:    DefaultProtectedPaths,
		WritableRoot: DefaultWritableRoot,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("new path policy: project root is required")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("new path policy: resolve project root: %w", err)
	}

	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("new path policy: resolve project root symlinks: %w", err)
	}

	info, err := os.Stat(rootResolved)
	if err != nil {
		return nil, fmt.Errorf("new path policy: stat project root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("new path policy: project root is not a directory: %q", rootResolved)
	}

	writable := normalizePrefix(opts.WritableRoot)
	if writable != "" && !strings.HasSuffix(writable, "/") {
		writable += "/"
	}

	if writable == "" || writable == "./" || strings.HasPrefix(writable, "../") {
		return nil, fmt.Errorf("new path policy: invalid writable root %q", opts.WritableRoot)
	}

	protected := make([]string, 0, len(opts.Protected))
	for _, p := range opts.Protected {
		if np := normalizePrefix(p); np != "" {
			protected = append(protected, np)
		}
	}

	return &PathPolicy{
		root:         rootResolved,
		protected:    protected,
		writableRoot: writable,
	}, nil
}

// Root returns the resolved project root.
func (p *PathPolicy) Root() string { return p.root }

// WritableRoot returns the writable prefix, relative and slash-terminated.
func (p *PathPolicy) WritableRoot() string { return p.writableRoot }

// WritableDir returns the absolute writable directory.
func (p *PathPolicy) WritableDir() string {
	return filepath.Join(p.root, filepath.FromSlash(p.writableRoot))
}

// Protected returns the configured protected prefixes.
func (p *PathPolicy) Protected() []string {
	out := make([]string, len(p.protected))
	copy(out, p.protected)

	return out
}

// CheckWrite validates that path may be created or modified and returns its
// absolute location. Protected prefixes are checked before the writable root.
func (p *PathPolicy) CheckWrite(path string) (string, error) {
	rel, err := p.relative(path)
	if err != nil {
		return "", err
	}

	for _, prefix := range p.protected {
		if matchesPrefix(rel, prefix) {
			return "", fmt.Errorf("%w: %q is under %q", ErrProtectedPath, rel, prefix)
		}
	}

	if !matchesPrefix(rel, p.writableRoot) || rel == strings.TrimSuffix(p.writableRoot, "/") {
		return "", fmt.Errorf("%w: %q must be under %q", ErrOutsideWritableRoot, rel, p.writableRoot)
	}

	abs := filepath.Join(p.root, filepath.FromSlash(rel))

	resolved, err := resolveExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}

	// a symlink inside the writable root may still point elsewhere
	if !hasPathPrefix(p.WritableDir(), resolved) {
		writableResolved, rerr := resolveExistingPrefix(p.WritableDir())
		if rerr != nil || !hasPathPrefix(writableResolved, resolved) {
			return "", fmt.Errorf("%w: %q resolves outside %q", ErrOutsideWritableRoot, rel, p.writableRoot)
		}
	}

	return abs, nil
}

// CheckRead validates that path lies inside the project tree and returns its
// absolute location. Reads are otherwise unrestricted.
func (p *PathPolicy) CheckRead(path string) (string, error) {
	rel, err := p.relative(path)
	if err != nil {
		return "", err
	}

	abs := filepath.Join(p.root, filepath.FromSlash(rel))

	resolved, err := resolveExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}

	if !hasPathPrefix(p.root, resolved) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, path)
	}

	return abs, nil
}

// Relative returns path normalized relative to the project root in slash form.
func (p *PathPolicy) Relative(path string) (string, error) { return p.relative(path) }

func (p *PathPolicy) relative(raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		return "", ErrPathRequired
	}

	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(p.root, filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, raw)
		}
		path = rel
	}

	rel := filepath.ToSlash(filepath.Clean(path))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, raw)
	}

	return rel, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}

	dir := strings.HasSuffix(prefix, "/")

	clean := filepath.ToSlash(filepath.Clean(prefix))
	if dir && clean != "." {
		clean += "/"
	}

	return clean
}

// matchesPrefix reports whether rel starts with prefix. A directory prefix
// ("src/") also matches the directory itself ("src").
func matchesPrefix(rel, prefix string) bool {
	if strings.HasSuffix(prefix, "/") && rel == strings.TrimSuffix(prefix, "/") {
		return true
	}

	return strings.HasPrefix(rel, prefix)
}

func resolveExistingPrefix(path string) (string, error) {
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			rel, relErr := filepath.Rel(current, path)
			if relErr != nil {
				return "", relErr
			}
			return filepath.Clean(filepath.Join(resolved, rel)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return filepath.Clean(path), nil
}

func hasPathPrefix(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
