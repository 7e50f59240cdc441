package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
	Logger "github.com/magicjudges/announcer/utils/log"
)

// SlackWebhook delivers announcements to Slack incoming webhooks.
type SlackWebhook struct {
	Client  *http.Client
	Footers FooterSource
	Now     utils.Clock
}

func NewSlackWebhook(footers FooterSource, timeout time.Duration) *SlackWebhook {
	return &SlackWebhook{
		Client:  &http.Client{Timeout: timeout},
		Footers: footers,
		Now:     utils.UTCNow,
	}
}

// Deliver renders a and POSTs it to the webhook of dest. Only a 200 answer
// counts as delivered.
func (w *SlackWebhook) Deliver(ctx context.Context, dest *model.SlackDestination, a *model.Announcement) error {
	footer, err := w.Footers.Footer(ctx)
	if err != nil {
		// A missing footer is cosmetic, the announcement still goes out.
		Logger.Log.WithError(err).Warn("fail to pick a footer")
		footer = ""
	}
	blocks, err := RenderAnnouncement(a, footer, w.Now())
	if err != nil {
		return errors.Wrap(err, "cannot render announcement")
	}

	webhookMsg := &slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, dest.Webhook, w.Client, webhookMsg); err != nil {
		return errors.Wrapf(err, "slack webhook of channel %s", dest.ChannelID)
	}
	Logger.Log.WithFields(logrus.Fields{
		"announcement_id": a.Id,
		"channel_id":      dest.ChannelID,
	}).Debug("announcement pushed to slack")
	return nil
}
