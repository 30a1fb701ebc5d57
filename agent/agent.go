// Package agent parses the coding agent's streamed JSON events and maps them
// onto session status updates and transcript entries.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/superagent-ai/vibe0/model"
)

// Event is one streamed message from the coding agent.
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// Message is the payload of an agent event.
type Message struct {
	Content []Block `json:"content"`
}

// Block is one content block of an agent message. Text blocks carry prose,
// tool_use blocks carry a tool name and its raw input.
type Block struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content string          `json:"content"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
}

// ParseEvent decodes one JSON line from the agent stream. Lines that are not
// JSON objects return an error and should be skipped.
func ParseEvent(line string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, fmt.Errorf("decoding agent event: %w", err)
	}
	return &ev, nil
}

// Update is the effect one agent event has on a session: an optional status
// transition and an optional transcript entry. Both may be nil for events the
// mapper does not recognize.
type Update struct {
	Status *model.Status
	Entry  *model.Entry
}

type writeInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type editInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

type readInput struct {
	FilePath string `json:"file_path"`
}

type todoInput struct {
	Todos model.TodoList `json:"todos"`
}

// MapEvent translates one agent event into its session update. Only the
// first content block is inspected; unknown event types, block types, and
// tool names yield an empty update.
func MapEvent(ev *Event) (Update, error) {
	if ev == nil || len(ev.Message.Content) == 0 {
		return Update{}, nil
	}
	block := ev.Message.Content[0]

	switch ev.Type {
	case "user":
		// Tool results echoed back to the agent; surface them as the
		// current activity.
		status := model.CustomStatus(block.Content)
		return Update{Status: &status}, nil

	case "assistant":
		status := model.CustomStatus("Working on task")
		update := Update{Status: &status}

		switch block.Type {
		case "text":
			update.Entry = &model.Entry{
				Role:    model.RoleAssistant,
				Content: block.Text,
			}
		case "tool_use":
			entry, err := mapToolUse(block)
			if err != nil {
				return Update{}, err
			}
			update.Entry = entry
		}
		return update, nil
	}
	return Update{}, nil
}

func mapToolUse(block Block) (*model.Entry, error) {
	switch block.Name {
	case "TodoWrite":
		var in todoInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decoding TodoWrite input: %w", err)
		}
		return &model.Entry{Role: model.RoleAssistant, Payload: in.Todos}, nil

	case "Write":
		var in writeInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decoding Write input: %w", err)
		}
		return &model.Entry{Role: model.RoleAssistant, Payload: model.Edit{
			FilePath:  in.FilePath,
			NewString: in.Content,
		}}, nil

	case "Edit":
		var in editInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decoding Edit input: %w", err)
		}
		return &model.Entry{Role: model.RoleAssistant, Payload: model.Edit{
			FilePath:  in.FilePath,
			OldString: in.OldString,
			NewString: in.NewString,
		}}, nil

	case "Read":
		var in readInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decoding Read input: %w", err)
		}
		return &model.Entry{Role: model.RoleAssistant, Payload: model.Read{
			FilePath: in.FilePath,
		}}, nil
	}
	// Other tools (Bash, Grep, ...) are not surfaced in the transcript.
	return nil, nil
}
