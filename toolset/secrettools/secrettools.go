// Package secrettools exposes the encrypted secret.FileStore to the model.
package secrettools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/secret"
	"github.com/hupe1980/toolmesh/tool"
)

// Tools returns the secret management tools backed by store.
func Tools(store *secret.FileStore) []tool.Tool {
	st := &secretTools{store: store}

	name := func(desc string) map[string]any {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string", "description": desc}},
			"required":   []string{"name"},
		}
	}

	empty := map[string]any{"type": "object", "properties": map[string]any{}}

	return []tool.Tool{
		tool.NewFunctionTool("list_secrets",
			"List all configured secrets (names and masked previews, not values).",
			empty,
			st.list,
		),
		tool.NewFunctionTool("get_secret",
			"Get a secret value and load it into the environment.",
			name("Secret name (e.g., ANTHROPIC_API_KEY)"),
			st.get,
		),
		tool.NewFunctionTool("set_secret",
			"Store a secret securely. Will be encrypted on disk.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":  map[string]any{"type": "string", "description": "Secret name (e.g., OPENAI_API_KEY)"},
					"value": map[string]any{"type": "string", "description": "Secret value"},
				},
				"required": []string{"name", "value"},
			},
			st.set,
		),
		tool.NewFunctionTool("delete_secret",
			"Delete a stored secret.",
			name("Secret name to delete"),
			st.delete,
		),
		tool.NewFunctionTool("load_all_secrets",
			"Load all stored secrets into the environment.",
			empty,
			st.loadAll,
		),
		tool.NewFunctionTool("check_required_secrets",
			"Check if all required secrets are configured.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"required": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "List of required secret names",
					},
				},
				"required": []string{"required"},
			},
			st.checkRequired,
		),
	}
}

type secretTools struct {
	store *secret.FileStore
}

func (st *secretTools) list(_ *core.ToolContext, _ map[string]any) (string, error) {
	previews, err := st.store.List()
	if err != nil {
		return "", err
	}

	if len(previews) == 0 {
		return "No secrets configured. Use set_secret to add API keys.", nil
	}

	return tool.JSONResult(map[string]any{"count": len(previews), "secrets": previews})
}

func (st *secretTools) get(tc *core.ToolContext, args map[string]any) (string, error) {
	name := tool.StringArg(args, "name")

	v, err := st.store.Get(name)
	if err != nil {
		return "", err
	}

	tc.LogInfo("secret.loaded", "name", name)

	return tool.JSONResult(map[string]any{
		"name":    name,
		"value":   v,
		"message": fmt.Sprintf("Secret loaded and set in environment as %s", name),
	})
}

func (st *secretTools) set(tc *core.ToolContext, args map[string]any) (string, error) {
	name := tool.StringArg(args, "name")

	created, err := st.store.Set(name, tool.StringArg(args, "value"))
	if err != nil {
		if errors.Is(err, secret.ErrInvalidName) {
			return "", &tool.ValidationError{Field: "name", Message: err.Error()}
		}
		return "", err
	}

	action := "updated"
	if created {
		action = "created"
	}

	tc.LogInfo("secret.stored", "name", name, "action", action)

	return tool.JSONResult(map[string]any{
		"success": true,
		"name":    name,
		"action":  action,
		"message": fmt.Sprintf("Secret %s %s and loaded into environment", name, action),
	})
}

func (st *secretTools) delete(tc *core.ToolContext, args map[string]any) (string, error) {
	name := tool.StringArg(args, "name")

	if err := st.store.Delete(name); err != nil {
		return "", err
	}

	tc.LogInfo("secret.deleted", "name", name)

	return tool.JSONResult(map[string]any{"success": true, "name": name, "action": "deleted"})
}

func (st *secretTools) loadAll(_ *core.ToolContext, _ map[string]any) (string, error) {
	names, err := st.store.LoadAll()
	if err != nil {
		return "", err
	}

	return tool.JSONResult(map[string]any{"success": true, "loaded": len(names), "secrets": names})
}

func (st *secretTools) checkRequired(_ *core.ToolContext, args map[string]any) (string, error) {
	present, missing, err := st.store.CheckRequired(tool.StringSliceArg(args, "required"))
	if err != nil {
		return "", err
	}

	msg := "All required secrets are configured"
	if len(missing) > 0 {
		msg = "Missing secrets: " + strings.Join(missing, ", ")
	}

	return tool.JSONResult(map[string]any{
		"allPresent": len(missing) == 0,
		"present":    present,
		"missing":    missing,
		"message":    msg,
	})
}
