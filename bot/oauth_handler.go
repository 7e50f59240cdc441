package bot

// This handler is to handle all oauth requests when a workspace adds the app
// to a channel with an incoming webhook.
// https://api.slack.com/authentication/oauth-v2

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/publisher"
	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

// SlackEndpoint is Slack's OAuth v2 endpoint. Slack expects the client
// credentials in the form body.
var SlackEndpoint = oauth2.Endpoint{
	AuthURL:   "https://slack.com/oauth/v2/authorize",
	TokenURL:  "https://slack.com/api/oauth.v2.access",
	AuthStyle: oauth2.AuthStyleInParams,
}

type SlackTeam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SlackIncomingWebhook struct {
	Channel   string `json:"channel"`
	ChannelId string `json:"channel_id"`
	Url       string `json:"url"`
}

func NewSlackOAuthConfig(opts flag.SlackOptions) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Scopes:       []string{"incoming-webhook"},
		Endpoint:     SlackEndpoint,
	}
}

// decodeExtra reads a nested object of the token response.
func decodeExtra(token *oauth2.Token, key string, out interface{}) error {
	raw := token.Extra(key)
	if raw == nil {
		return errors.Errorf("token response has no %s", key)
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// ExchangeCode trades an OAuth code for the team and the webhook Slack
// created.
func ExchangeCode(ctx context.Context, conf *oauth2.Config, code string) (SlackTeam, SlackIncomingWebhook, error) {
	var (
		team SlackTeam
		hook SlackIncomingWebhook
	)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return team, hook, errors.Wrap(err, "oauth exchange failed")
	}
	if err := decodeExtra(token, "incoming_webhook", &hook); err != nil {
		return team, hook, err
	}
	if err := decodeExtra(token, "team", &team); err != nil {
		return team, hook, err
	}
	if hook.ChannelId == "" || hook.Url == "" {
		return team, hook, errors.New("token response has an incomplete incoming_webhook")
	}
	return team, hook, nil
}

// ConnectSlackChannel creates the destination of a channel, or refreshes its
// webhook when the channel was connected before. A new destination is
// subscribed to the default sources.
func ConnectSlackChannel(db *gorm.DB, team SlackTeam, hook SlackIncomingWebhook) (*model.Destination, error) {
	var dest model.Destination
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing model.SlackDestination
		err := tx.Where("channel_id = ?", hook.ChannelId).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"team_id": team.ID,
				"webhook": hook.Url,
			}).Error; err != nil {
				return err
			}
			// Reconnecting a removed channel brings its destination back.
			if err := tx.Unscoped().Model(&model.Destination{}).
				Where("id = ?", existing.DestinationID).
				Updates(map[string]interface{}{"name": hook.Channel, "deleted_at": nil}).Error; err != nil {
				return err
			}
			if err := tx.Preload("Slack").First(&dest, "id = ?", existing.DestinationID).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			dest = model.Destination{
				Id:           uuid.New().String(),
				Name:         hook.Channel,
				Kind:         model.DestinationKindSlack,
				LanguageTags: model.DefaultLanguageTags,
				Slack: &model.SlackDestination{
					TeamID:    team.ID,
					ChannelID: hook.ChannelId,
					Webhook:   hook.Url,
				},
			}
			if err := tx.Create(&dest).Error; err != nil {
				return err
			}
		default:
			return err
		}

		_, err = publisher.MaybeAddDefaultSources(tx, &dest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dest, nil
}

func AuthHandler(db *gorm.DB, conf *oauth2.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, ok := c.GetQuery("code")
		if !ok || code == "" {
			Logger.Log.Error("got an oauth request without code")
			c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
			return
		}

		team, hook, err := ExchangeCode(c.Request.Context(), conf, code)
		if err != nil {
			Logger.Log.WithError(err).Error("failed to fetch channel info from slack")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to fetch the channel info from slack, please contact the tech team"})
			return
		}

		dest, err := ConnectSlackChannel(db, team, hook)
		if err != nil {
			Logger.Log.WithError(err).Error("failed to save the channel to backend")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save the channel, please contact the tech team"})
			return
		}
		Logger.Log.WithFields(logrus.Fields{
			"destination_id": dest.Id,
			"channel":        hook.Channel,
			"team":           team.Name,
		}).Info("app added to a channel")

		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte("Announcer is successfully added. Check your slack channel now!"))
	}
}
