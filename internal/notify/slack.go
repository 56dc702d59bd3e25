package notify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/slack-go/slack"

	"github.com/sjawhar/meetscribe/internal/storage"
)

// previewLimit caps the summary text posted to the channel, in runes.
const previewLimit = 2000

// Slack posts a meeting summary to an incoming webhook. Delivery is attempted
// once.
type Slack struct {
	webhookURL string
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL}
}

func (s *Slack) Notify(ctx context.Context, m storage.Meeting, reportPath string) error {
	if err := slack.PostWebhookContext(ctx, s.webhookURL, Message(m, reportPath)); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// Message builds the webhook payload for a finalized meeting.
func Message(m storage.Meeting, reportPath string) *slack.WebhookMessage {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Meeting Summary Ready", false, false))

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Meeting ID:*\n"+m.ID, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Date:*\n"+m.CreatedAt.Format("2006-01-02 15:04 MST"), false, false),
	}
	if reportPath != "" {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, "*Report:*\n"+filepath.Base(reportPath), false, false))
	}
	meta := slack.NewSectionBlock(nil, fields, nil)

	preview := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*Summary Preview:*\n"+Preview(m.Summary), false, false),
		nil, nil,
	)

	return &slack.WebhookMessage{
		Text:   "New meeting summary: " + m.ID,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{header, meta, preview}},
	}
}

// Preview truncates summary to the preview limit, marking the cut with "...".
func Preview(summary string) string {
	r := []rune(summary)
	if len(r) <= previewLimit {
		return summary
	}
	return string(r[:previewLimit]) + "..."
}
