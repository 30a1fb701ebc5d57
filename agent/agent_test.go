package agent

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/store"
)

func TestMapEventUserBecomesCustomStatus(t *testing.T) {
	ev, err := ParseEvent(`{"type":"user","message":{"content":[{"type":"tool_result","content":"Installed 120 packages"}]}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	update, err := MapEvent(ev)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if update.Entry != nil {
		t.Fatalf("user event must not create an entry: %+v", update.Entry)
	}
	if update.Status == nil || update.Status.Phase() != model.PhaseCustom {
		t.Fatalf("expected CUSTOM status, got %+v", update.Status)
	}
	if update.Status.Message() != "Installed 120 packages" {
		t.Fatalf("unexpected status message %q", update.Status.Message())
	}
}

func TestMapEventAssistantText(t *testing.T) {
	ev, _ := ParseEvent(`{"type":"assistant","message":{"content":[{"type":"text","text":"I'll add a hero section."}]}}`)
	update, err := MapEvent(ev)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if update.Status == nil || update.Status.Message() != "Working on task" {
		t.Fatalf("expected Working on task status, got %+v", update.Status)
	}
	if update.Entry == nil || update.Entry.Kind() != model.EntryText {
		t.Fatalf("expected text entry, got %+v", update.Entry)
	}
	if update.Entry.Content != "I'll add a hero section." {
		t.Fatalf("unexpected content %q", update.Entry.Content)
	}
	if update.Entry.Role != model.RoleAssistant {
		t.Fatalf("unexpected role %q", update.Entry.Role)
	}
}

func TestMapEventToolUse(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind model.EntryKind
		chk  func(t *testing.T, e *model.Entry)
	}{
		{
			name: "TodoWrite",
			line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"TodoWrite","input":{"todos":[{"id":"1","content":"hero","status":"pending","priority":"high"}]}}]}}`,
			kind: model.EntryTodos,
			chk: func(t *testing.T, e *model.Entry) {
				todos := e.Payload.(model.TodoList)
				if len(todos) != 1 || todos[0].Content != "hero" {
					t.Fatalf("unexpected todos: %+v", todos)
				}
			},
		},
		{
			name: "Write maps to edit with empty old string",
			line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"app/page.tsx","content":"export default"}}]}}`,
			kind: model.EntryEdit,
			chk: func(t *testing.T, e *model.Entry) {
				edit := e.Payload.(model.Edit)
				if edit.OldString != "" || edit.NewString != "export default" {
					t.Fatalf("unexpected edit: %+v", edit)
				}
			},
		},
		{
			name: "Edit",
			line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"a.ts","old_string":"foo","new_string":"bar"}}]}}`,
			kind: model.EntryEdit,
			chk: func(t *testing.T, e *model.Entry) {
				edit := e.Payload.(model.Edit)
				if edit.OldString != "foo" || edit.NewString != "bar" {
					t.Fatalf("unexpected edit: %+v", edit)
				}
			},
		},
		{
			name: "Read",
			line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"package.json"}}]}}`,
			kind: model.EntryRead,
			chk: func(t *testing.T, e *model.Entry) {
				read := e.Payload.(model.Read)
				if read.FilePath != "package.json" {
					t.Fatalf("unexpected read: %+v", read)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent(tt.line)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			update, err := MapEvent(ev)
			if err != nil {
				t.Fatalf("map: %v", err)
			}
			if update.Entry == nil {
				t.Fatal("expected an entry")
			}
			if update.Entry.Kind() != tt.kind {
				t.Fatalf("expected kind %q, got %q", tt.kind, update.Entry.Kind())
			}
			tt.chk(t, update.Entry)
		})
	}
}

func TestMapEventIgnoresUnknown(t *testing.T) {
	lines := []string{
		`{"type":"system","message":{"content":[{"type":"text","text":"init"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"assistant","message":{"content":[]}}`,
	}
	for _, line := range lines {
		ev, err := ParseEvent(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		update, err := MapEvent(ev)
		if err != nil {
			t.Fatalf("map %q: %v", line, err)
		}
		if update.Entry != nil {
			t.Fatalf("expected no entry for %q, got %+v", line, update.Entry)
		}
	}
}

// stubLines feeds a fixed set of lines to the mapper.
type stubLines struct {
	lines []string
	pos   int
}

func (s *stubLines) Scan() bool {
	if s.pos >= len(s.lines) {
		return false
	}
	s.pos++
	return true
}

func (s *stubLines) Text() string { return s.lines[s.pos-1] }
func (s *stubLines) Err() error   { return nil }

// recordingStore captures entries and status patches in order.
type recordingStore struct {
	store.SessionStore
	entries  []*model.Entry
	statuses []model.Status
}

func (r *recordingStore) AddEntry(e *model.Entry) error {
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingStore) PatchSession(id string, patch store.SessionPatch) error {
	if patch.Status != nil {
		r.statuses = append(r.statuses, *patch.Status)
	}
	return nil
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestMapperPreservesStreamOrder(t *testing.T) {
	lines := &stubLines{lines: []string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"first"}]}}`,
		`not json`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"a.ts"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`,
	}}

	rec := &recordingStore{}
	m := NewMapper(rec, eventbus.NewInMemoryBus(), newTestLogger())
	if err := m.Run(context.Background(), "sess1", lines); err != nil {
		t.Fatalf("run: %v", err)
	}

	// One entry per recognized event, in stream order.
	wantKinds := []model.EntryKind{model.EntryText, model.EntryRead, model.EntryText}
	if len(rec.entries) != len(wantKinds) {
		t.Fatalf("expected %d entries, got %d", len(wantKinds), len(rec.entries))
	}
	for i, e := range rec.entries {
		if e.Kind() != wantKinds[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, wantKinds[i], e.Kind())
		}
		if e.SessionID != "sess1" {
			t.Fatalf("entry %d: session id not set", i)
		}
	}
	if rec.entries[0].Content != "first" || rec.entries[2].Content != "done" {
		t.Fatal("entries out of order")
	}
}

func TestMapperPublishesUpdates(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	ch := bus.Subscribe("sess1")
	defer bus.Unsubscribe("sess1", ch)

	lines := &stubLines{lines: []string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
	}}
	m := NewMapper(&recordingStore{}, bus, newTestLogger())
	if err := m.Run(context.Background(), "sess1", lines); err != nil {
		t.Fatalf("run: %v", err)
	}

	var topics []eventbus.Topic
	for len(ch) > 0 {
		topics = append(topics, (<-ch).Topic)
	}
	if len(topics) != 2 || topics[0] != eventbus.TopicStatus || topics[1] != eventbus.TopicUpdate {
		t.Fatalf("unexpected topics: %v", topics)
	}
}
