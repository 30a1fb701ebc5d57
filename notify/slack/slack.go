// Package slack posts session lifecycle notifications to a Slack channel.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/notify"
)

// Notifier posts to a fixed Slack channel.
type Notifier struct {
	api     *slack.Client
	channel string
}

// New creates a Slack notifier with a bot token and target channel ID.
func New(botToken, channel string) *Notifier {
	return &Notifier{
		api:     slack.New(botToken),
		channel: channel,
	}
}

// Notify posts a Block Kit message for the event.
func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	var header string
	switch ev.Status.Phase() {
	case model.PhaseRunning:
		header = fmt.Sprintf(":white_check_mark: *%s is live*\n<%s|Open preview>", ev.Name, ev.TunnelURL)
	case model.PhaseFailed:
		header = fmt.Sprintf(":x: *%s failed*\n> %s", ev.Name, ev.Status.Message())
	default:
		header = fmt.Sprintf(":gear: *%s*: %s", ev.Name, ev.Status.Phase())
	}

	headerSection := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, header, false, false), nil, nil)
	contextBlock := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("Session `%s`", ev.SessionID), false, false))

	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionBlocks(headerSection, contextBlock),
	)
	if err != nil {
		return fmt.Errorf("posting slack message: %w", err)
	}
	return nil
}
