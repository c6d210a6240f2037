// Package toolset assembles the tool catalog: every tool group wired to its
// backing service, registered in a fixed order and grouped by category.
package toolset

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/secret"
	"github.com/hupe1980/toolmesh/task"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/hupe1980/toolmesh/toolset/database"
	"github.com/hupe1980/toolmesh/toolset/debugging"
	"github.com/hupe1980/toolmesh/toolset/document"
	"github.com/hupe1980/toolmesh/toolset/fileops"
	"github.com/hupe1980/toolmesh/toolset/media"
	"github.com/hupe1980/toolmesh/toolset/memorytools"
	"github.com/hupe1980/toolmesh/toolset/secrettools"
	"github.com/hupe1980/toolmesh/toolset/shell"
	"github.com/hupe1980/toolmesh/toolset/tasktools"
	"github.com/hupe1980/toolmesh/toolset/web"
)

// ErrMissingPolicy is returned when Build is called without a path policy.
var ErrMissingPolicy = errors.New("toolset: path policy is required")

// Deps are the services tool groups are bound to. A nil optional service
// leaves its group out of the catalog.
type Deps struct {
	Paths  *guard.PathPolicy
	Runner *guard.Runner

	DB      *sql.DB
	Memory  core.MemoryStore
	Browser *debugging.Session
	Media   media.Client
	Tasks   *task.Tracker
	Secrets *secret.FileStore

	WebOptions []func(o *web.Options)
}

// Category is one named tool group.
type Category struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

// Catalog is the frozen registry plus its grouping.
type Catalog struct {
	Registry   *tool.Registry
	Categories []Category
}

// Build registers every available group in catalog order and freezes the
// registry.
func Build(deps Deps) (*Catalog, error) {
	if deps.Paths == nil {
		return nil, ErrMissingPolicy
	}

	groups := []struct {
		name  string
		tools func() []tool.Tool
		ok    bool
	}{
		{"File Operations", func() []tool.Tool { return fileops.Tools(deps.Paths) }, true},
		{"Code Execution", func() []tool.Tool { return shell.Tools(deps.Runner) }, deps.Runner != nil},
		{"Web Access", func() []tool.Tool { return web.Tools(deps.WebOptions...) }, true},
		{"Database", func() []tool.Tool { return database.Tools(deps.DB) }, deps.DB != nil},
		{"Memory", func() []tool.Tool { return memorytools.Tools(deps.Memory) }, deps.Memory != nil},
		{"Debugging", func() []tool.Tool { return debugging.Tools(deps.Browser, deps.Paths) }, deps.Browser != nil},
		{"AI & Media", func() []tool.Tool { return media.Tools(deps.Media, deps.Paths) }, deps.Media != nil},
		{"Document Parsing", func() []tool.Tool { return document.Tools(deps.Paths) }, true},
		{"Task Tracking", func() []tool.Tool { return tasktools.Tools(deps.Tasks) }, deps.Tasks != nil},
		{"Secrets Manager", func() []tool.Tool { return secrettools.Tools(deps.Secrets) }, deps.Secrets != nil},
	}

	reg, err := tool.NewRegistry()
	if err != nil {
		return nil, err
	}

	cat := &Catalog{Registry: reg}

	for _, g := range groups {
		if !g.ok {
			continue
		}

		c := Category{Name: g.name}

		for _, t := range g.tools() {
			if err := reg.Register(t); err != nil {
				return nil, fmt.Errorf("register %s: %w", g.name, err)
			}

			c.Tools = append(c.Tools, t.Name())
		}

		cat.Categories = append(cat.Categories, c)
	}

	reg.Freeze()

	return cat, nil
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int { return c.Registry.Len() }

const systemPromptTemplate = `You are {{.name}}, an autonomous assistant with {{plural .count "tool"}} for working inside a software project.

## Your Capabilities
{{range .categories}}
### {{.Name}} ({{plural (len .Tools) "tool"}})
{{join ", " .Tools}}
{{end}}
## Guidelines

1. Use the most appropriate tool for each task and verify your work.
2. Files may only be created or modified under {{.writable}}; other paths are read-only.
3. Shell commands are limited to an allow-list and run inside {{.writable}}.
4. Call independent tools together in one turn; they run in parallel.
5. Keep at most one task in_progress when tracking multi-step work.
6. When a tool reports an error, read it and adjust instead of repeating the same call.`

// SystemPrompt renders the default system prompt for the catalog.
func (c *Catalog) SystemPrompt(name, writableRoot string) (string, error) {
	return util.RenderTemplate(systemPromptTemplate, map[string]any{
		"name":       name,
		"count":      c.Len(),
		"categories": c.Categories,
		"writable":   writableRoot,
	})
}
