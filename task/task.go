// Package task implements the in-process task tracker the model uses to plan
// multi-step work. At most one task is in progress at any time.
package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidStatus is returned for a status outside todo/in_progress/done.
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrTitleRequired is returned when creating or renaming with a blank title.
	ErrTitleRequired = errors.New("task title is required")
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusTodo, StatusInProgress, StatusDone:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Task is one tracked unit of work.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Notes       []string  `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tracker stores tasks in memory. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*Task), now: time.Now}
}

// Create adds a todo task.
func (t *Tracker) Create(title, description string) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, ErrTitleRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	tk := &Task{
		ID:          "task_" + strings.ToLower(ulid.Make().String()),
		Title:       title,
		Description: description,
		Status:      StatusTodo,
		Notes:       []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.tasks[tk.ID] = tk

	return clone(tk), nil
}

// UpdateTitle renames a task and returns the previous title.
func (t *Tracker) UpdateTitle(id, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrTitleRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tk, err := t.getLocked(id)
	if err != nil {
		return "", err
	}

	old := tk.Title
	tk.Title = title
	tk.UpdatedAt = t.now().UTC()

	return old, nil
}

// UpdateDescription replaces a task's description.
func (t *Tracker) UpdateDescription(id, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, err := t.getLocked(id)
	if err != nil {
		return err
	}

	tk.Description = description
	tk.UpdatedAt = t.now().UTC()

	return nil
}

// SetStatus moves a task and returns its previous status. Moving a task to
// in_progress demotes any other in-progress task to todo.
func (t *Tracker) SetStatus(id string, status Status) (Status, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tk, err := t.getLocked(id)
	if err != nil {
		return "", err
	}

	now := t.now().UTC()

	if status == StatusInProgress {
		for otherID, other := range t.tasks {
			if otherID != id && other.Status == StatusInProgress {
				other.Status = StatusTodo
				other.UpdatedAt = now
			}
		}
	}

	old := tk.Status
	tk.Status = status
	tk.UpdatedAt = now

	return old, nil
}

// AddNote appends a timestamped note and returns the note count.
func (t *Tracker) AddNote(id, note string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, err := t.getLocked(id)
	if err != nil {
		return 0, err
	}

	now := t.now().UTC()
	tk.Notes = append(tk.Notes, fmt.Sprintf("[%s] %s", now.Format(time.RFC3339), note))
	tk.UpdatedAt = now

	return len(tk.Notes), nil
}

// Get returns a copy of one task.
func (t *Tracker) Get(id string) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, err := t.getLocked(id)
	if err != nil {
		return Task{}, err
	}

	return clone(tk), nil
}

// List returns every task in creation order.
func (t *Tracker) List() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Task, 0, len(t.tasks))
	for _, tk := range t.tasks {
		out = append(out, clone(tk))
	}

	// ulid ids sort by creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Clear removes every task and returns how many were removed.
func (t *Tracker) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.tasks)
	t.tasks = make(map[string]*Task)

	return n
}

// Markdown renders the task list grouped by status.
func (t *Tracker) Markdown() string {
	tasks := t.List()
	if len(tasks) == 0 {
		return "No tasks in tracking system."
	}

	var b strings.Builder

	b.WriteString("## Task List\n\n")

	groups := []struct {
		status  Status
		heading string
	}{
		{StatusInProgress, "### In Progress"},
		{StatusTodo, "### To Do"},
		{StatusDone, "### Done"},
	}

	for _, g := range groups {
		var section []Task
		for _, tk := range tasks {
			if tk.Status == g.status {
				section = append(section, tk)
			}
		}

		if len(section) == 0 {
			continue
		}

		b.WriteString(g.heading + "\n")

		for _, tk := range section {
			fmt.Fprintf(&b, "- [%s] %s\n", tk.ID, tk.Title)

			if g.status == StatusInProgress && len(tk.Notes) > 0 {
				fmt.Fprintf(&b, "  Last note: %s\n", tk.Notes[len(tk.Notes)-1])
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}

func (t *Tracker) getLocked(id string) (*Task, error) {
	tk, ok := t.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return tk, nil
}

func clone(tk *Task) Task {
	cp := *tk
	cp.Notes = append([]string{}, tk.Notes...)

	return cp
}
