// Package tasktools exposes a task.Tracker to the model.
package tasktools

import (
	"errors"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/task"
	"github.com/hupe1980/toolmesh/tool"
)

// Tools returns the task tracking tools backed by tracker.
func Tools(tracker *task.Tracker) []tool.Tool {
	tt := &taskTools{tracker: tracker}

	taskID := map[string]any{"type": "string", "description": "ID of the task"}

	return []tool.Tool{
		tool.NewFunctionTool("create_task",
			"Create a new task to track progress on multi-step work.",
			object(map[string]any{
				"title":       map[string]any{"type": "string", "description": "Short task title"},
				"description": map[string]any{"type": "string", "description": "What needs to be done"},
			}, "title", "description"),
			tt.create,
		),
		tool.NewFunctionTool("update_task_title",
			"Rename an existing task.",
			object(map[string]any{
				"taskId":   taskID,
				"newTitle": map[string]any{"type": "string", "description": "New title"},
			}, "taskId", "newTitle"),
			tt.updateTitle,
		),
		tool.NewFunctionTool("update_task_description",
			"Replace the description of an existing task.",
			object(map[string]any{
				"taskId":         taskID,
				"newDescription": map[string]any{"type": "string", "description": "New description"},
			}, "taskId", "newDescription"),
			tt.updateDescription,
		),
		tool.NewFunctionTool("set_task_status",
			"Set the status of a task. Only one task can be in_progress at a time; any other in-progress task moves back to todo.",
			object(map[string]any{
				"taskId": taskID,
				"status": map[string]any{
					"type":        "string",
					"enum":        []string{string(task.StatusTodo), string(task.StatusInProgress), string(task.StatusDone)},
					"description": "New status",
				},
			}, "taskId", "status"),
			tt.setStatus,
		),
		tool.NewFunctionTool("get_task",
			"Get the full details of a task including its notes.",
			object(map[string]any{"taskId": taskID}, "taskId"),
			tt.get,
		),
		tool.NewFunctionTool("get_task_list",
			"Get all tasks grouped by status.",
			object(map[string]any{}),
			tt.list,
		),
		tool.NewFunctionTool("add_task_note",
			"Add a timestamped progress note to a task.",
			object(map[string]any{
				"taskId": taskID,
				"note":   map[string]any{"type": "string", "description": "Note text"},
			}, "taskId", "note"),
			tt.addNote,
		),
		tool.NewFunctionTool("clear_tasks",
			"Remove all tasks, e.g. when starting a new piece of work.",
			object(map[string]any{}),
			tt.clear,
		),
	}
}

type taskTools struct {
	tracker *task.Tracker
}

func (tt *taskTools) create(_ *core.ToolContext, args map[string]any) (string, error) {
	tk, err := tt.tracker.Create(tool.StringArg(args, "title"), tool.StringArg(args, "description"))
	if err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(map[string]any{
		"success": true,
		"task":    map[string]any{"id": tk.ID, "title": tk.Title, "status": tk.Status},
	})
}

func (tt *taskTools) updateTitle(_ *core.ToolContext, args map[string]any) (string, error) {
	id, title := tool.StringArg(args, "taskId"), tool.StringArg(args, "newTitle")

	old, err := tt.tracker.UpdateTitle(id, title)
	if err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(map[string]any{"success": true, "taskId": id, "oldTitle": old, "newTitle": title})
}

func (tt *taskTools) updateDescription(_ *core.ToolContext, args map[string]any) (string, error) {
	id, desc := tool.StringArg(args, "taskId"), tool.StringArg(args, "newDescription")

	if err := tt.tracker.UpdateDescription(id, desc); err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(map[string]any{"success": true, "taskId": id, "description": desc})
}

func (tt *taskTools) setStatus(_ *core.ToolContext, args map[string]any) (string, error) {
	id := tool.StringArg(args, "taskId")

	status, err := task.ParseStatus(tool.StringArg(args, "status"))
	if err != nil {
		return "", wrap(err)
	}

	old, err := tt.tracker.SetStatus(id, status)
	if err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(map[string]any{"success": true, "taskId": id, "oldStatus": old, "newStatus": status})
}

func (tt *taskTools) get(_ *core.ToolContext, args map[string]any) (string, error) {
	tk, err := tt.tracker.Get(tool.StringArg(args, "taskId"))
	if err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(tk)
}

func (tt *taskTools) list(_ *core.ToolContext, _ map[string]any) (string, error) {
	return tt.tracker.Markdown(), nil
}

func (tt *taskTools) addNote(_ *core.ToolContext, args map[string]any) (string, error) {
	id := tool.StringArg(args, "taskId")

	n, err := tt.tracker.AddNote(id, tool.StringArg(args, "note"))
	if err != nil {
		return "", wrap(err)
	}

	return tool.JSONResult(map[string]any{"success": true, "taskId": id, "noteCount": n})
}

func (tt *taskTools) clear(_ *core.ToolContext, _ map[string]any) (string, error) {
	return tool.JSONResult(map[string]any{"success": true, "clearedCount": tt.tracker.Clear()})
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// wrap reports caller mistakes as validation errors so the model can retry.
func wrap(err error) error {
	switch {
	case errors.Is(err, task.ErrTitleRequired):
		return &tool.ValidationError{Field: "title", Message: err.Error()}
	case errors.Is(err, task.ErrInvalidStatus):
		return &tool.ValidationError{Field: "status", Message: err.Error()}
	default:
		return err
	}
}
