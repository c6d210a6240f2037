package secrettools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/secret"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (e mapEnv) Getenv(k string) string { return e[k] }

func (e mapEnv) Setenv(k, v string) error {
	e[k] = v
	return nil
}

func (e mapEnv) Unsetenv(k string) error {
	delete(e, k)
	return nil
}

func setup(t *testing.T) (map[string]tool.Tool, mapEnv) {
	t.Helper()

	env := mapEnv{}
	store, err := secret.NewFileStore(func(o *secret.Options) {
		o.Path = filepath.Join(t.TempDir(), ".secrets.enc")
		o.Password = "test-password"
		o.Env = env
	})
	require.NoError(t, err)

	tools := map[string]tool.Tool{}
	for _, tl := range Tools(store) {
		tools[tl.Name()] = tl
	}

	return tools, env
}

func call(t *testing.T, tl tool.Tool, args map[string]any) map[string]any {
	t.Helper()

	out, err := tl.Call(core.NewStandaloneToolContext(context.Background(), "c", nil), args)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))

	return m
}

func TestSecretTools(t *testing.T) {
	tools, env := setup(t)

	out, err := tools["list_secrets"].Call(core.NewStandaloneToolContext(context.Background(), "c", nil), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "No secrets configured")

	m := call(t, tools["set_secret"], map[string]any{"name": "OPENAI_API_KEY", "value": "sk-abcdef123456"})
	assert.Equal(t, "created", m["action"])
	assert.Equal(t, "sk-abcdef123456", env["OPENAI_API_KEY"])

	m = call(t, tools["set_secret"], map[string]any{"name": "OPENAI_API_KEY", "value": "sk-zzzzzz999999"})
	assert.Equal(t, "updated", m["action"])

	m = call(t, tools["list_secrets"], map[string]any{})
	assert.Equal(t, 1.0, m["count"])
	preview := m["secrets"].([]any)[0].(map[string]any)
	assert.Equal(t, "sk-z...9999", preview["preview"])

	delete(env, "OPENAI_API_KEY")
	m = call(t, tools["get_secret"], map[string]any{"name": "OPENAI_API_KEY"})
	assert.Equal(t, "sk-zzzzzz999999", m["value"])
	assert.Equal(t, "sk-zzzzzz999999", env["OPENAI_API_KEY"])

	env["FROM_ENV"] = "1"
	m = call(t, tools["check_required_secrets"], map[string]any{"required": []any{"OPENAI_API_KEY", "FROM_ENV", "MISSING"}})
	assert.Equal(t, false, m["allPresent"])
	assert.Equal(t, []any{"MISSING"}, m["missing"])
	assert.Equal(t, "Missing secrets: MISSING", m["message"])

	m = call(t, tools["load_all_secrets"], map[string]any{})
	assert.Equal(t, 1.0, m["loaded"])

	m = call(t, tools["delete_secret"], map[string]any{"name": "OPENAI_API_KEY"})
	assert.Equal(t, "deleted", m["action"])
	_, ok := env["OPENAI_API_KEY"]
	assert.False(t, ok)
}

func TestSecretTools_Errors(t *testing.T) {
	tools, _ := setup(t)
	tc := core.NewStandaloneToolContext(context.Background(), "c", nil)

	_, err := tools["get_secret"].Call(tc, map[string]any{"name": "NOPE"})
	assert.ErrorIs(t, err, secret.ErrNotFound)

	_, err = tools["set_secret"].Call(tc, map[string]any{"name": "bad name", "value": "x"})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeValidation, te.Code)
}
