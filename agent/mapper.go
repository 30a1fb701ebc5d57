package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/store"
)

// Lines is a sequential line stream, usually a sandbox.LineScanner.
type Lines interface {
	Scan() bool
	Text() string
	Err() error
}

// Mapper drains an agent event stream into the session store and event bus.
type Mapper struct {
	store store.SessionStore
	bus   eventbus.Bus
	log   *logrus.Logger
}

// NewMapper creates a Mapper with explicit dependencies.
func NewMapper(st store.SessionStore, bus eventbus.Bus, log *logrus.Logger) *Mapper {
	return &Mapper{store: st, bus: bus, log: log}
}

// Run consumes the stream one event at a time until it is exhausted or the
// context is cancelled. Persistence is best-effort: a failed write is logged
// and the stream keeps flowing so one bad event cannot stall the agent.
func (m *Mapper) Run(ctx context.Context, sessionID string, lines Lines) error {
	for lines.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := lines.Text()
		if line == "" {
			continue
		}

		ev, err := ParseEvent(line)
		if err != nil {
			m.log.WithError(err).WithField("session", sessionID).Debug("skipping unparseable agent line")
			continue
		}
		update, err := MapEvent(ev)
		if err != nil {
			m.log.WithError(err).WithField("session", sessionID).Warn("skipping malformed agent event")
			continue
		}
		m.apply(sessionID, update)
	}
	return lines.Err()
}

func (m *Mapper) apply(sessionID string, update Update) {
	if update.Status != nil {
		err := m.store.PatchSession(sessionID, store.SessionPatch{Status: update.Status})
		if err != nil {
			m.log.WithError(err).WithField("session", sessionID).Warn("persisting agent status failed")
		}
		if msg, err := eventbus.NewStatusMessage(sessionID, update.Status); err == nil {
			m.bus.Publish(sessionID, msg)
		}
	}

	if update.Entry != nil {
		entry := update.Entry
		entry.SessionID = sessionID
		entry.CreatedAt = time.Now().UTC()
		if err := m.store.AddEntry(entry); err != nil {
			m.log.WithError(err).WithField("session", sessionID).Warn("persisting transcript entry failed")
		}
		if msg, err := eventbus.NewUpdateMessage(sessionID, entry); err == nil {
			m.bus.Publish(sessionID, msg)
		}
	}
}
