package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EntryKind discriminates the structured payload of a transcript entry.
type EntryKind string

const (
	EntryText       EntryKind = "text"
	EntryEdit       EntryKind = "edit"
	EntryRead       EntryKind = "read"
	EntryTodos      EntryKind = "todos"
	EntryCheckpoint EntryKind = "checkpoint"
)

// Payload is the structured content of a transcript entry. Exactly one
// concrete payload type exists per entry kind; plain text entries carry a
// nil payload. Consumers switch on the concrete type.
type Payload interface {
	Kind() EntryKind
}

// Edit records a file write or modification made by the agent. A fresh
// write has an empty OldString.
type Edit struct {
	FilePath  string `json:"filePath"`
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
}

func (Edit) Kind() EntryKind { return EntryEdit }

// Read records a file read performed by the agent.
type Read struct {
	FilePath string `json:"filePath"`
}

func (Read) Kind() EntryKind { return EntryRead }

// Todo is one item of the agent's task list.
type Todo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// TodoList is a snapshot of the agent's task list. Only the most recent
// non-empty snapshot in a transcript is current.
type TodoList []Todo

func (TodoList) Kind() EntryKind { return EntryTodos }

// Checkpoint is a reserved payload for branch checkpointing. Not currently
// produced by the mapper.
type Checkpoint struct {
	Branch string `json:"branch"`
	Patch  string `json:"patch,omitempty"`
}

func (Checkpoint) Kind() EntryKind { return EntryCheckpoint }

// Entry is one transcript item of a session. Entries are append-only and
// their insertion order is the display and causal order.
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Payload   Payload   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Kind returns the entry's discriminant; EntryText when no payload is set.
func (e *Entry) Kind() EntryKind {
	if e.Payload == nil {
		return EntryText
	}
	return e.Payload.Kind()
}

// entryJSON is the wire form of an Entry. The payload field names match the
// shapes the UI consumes (edits/read/todos/checkpoint).
type entryJSON struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"session_id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Kind       EntryKind   `json:"kind"`
	Edits      *Edit       `json:"edits,omitempty"`
	Read       *Read       `json:"read,omitempty"`
	Todos      TodoList    `json:"todos,omitempty"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// MarshalJSON flattens the tagged payload into the wire shape.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:        e.ID,
		SessionID: e.SessionID,
		Role:      e.Role,
		Content:   e.Content,
		Kind:      e.Kind(),
		CreatedAt: e.CreatedAt,
	}
	switch p := e.Payload.(type) {
	case nil:
	case Edit:
		out.Edits = &p
	case Read:
		out.Read = &p
	case TodoList:
		out.Todos = p
	case Checkpoint:
		out.Checkpoint = &p
	default:
		return nil, fmt.Errorf("unknown entry payload type %T", e.Payload)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs the tagged payload from the wire shape.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.SessionID = raw.SessionID
	e.Role = raw.Role
	e.Content = raw.Content
	e.CreatedAt = raw.CreatedAt
	switch {
	case raw.Edits != nil:
		e.Payload = *raw.Edits
	case raw.Read != nil:
		e.Payload = *raw.Read
	case len(raw.Todos) > 0 || raw.Kind == EntryTodos:
		e.Payload = raw.Todos
	case raw.Checkpoint != nil:
		e.Payload = *raw.Checkpoint
	default:
		e.Payload = nil
	}
	return nil
}

// MarshalPayload encodes only the payload for persistence. Returns an empty
// string for plain text entries.
func (e *Entry) MarshalPayload() (string, error) {
	if e.Payload == nil {
		return "", nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", e.Kind(), err)
	}
	return string(data), nil
}

// UnmarshalPayload decodes a persisted payload for the given kind.
func UnmarshalPayload(kind EntryKind, data string) (Payload, error) {
	if data == "" || kind == EntryText {
		return nil, nil
	}
	switch kind {
	case EntryEdit:
		var p Edit
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return p, nil
	case EntryRead:
		var p Read
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return p, nil
	case EntryTodos:
		var p TodoList
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return p, nil
	case EntryCheckpoint:
		var p Checkpoint
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown entry kind %q", kind)
}
