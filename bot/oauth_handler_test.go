package bot

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
)

// slackTokenServer answers oauth.v2.access with a webhook for channel C1.
func slackTokenServer(t *testing.T, webhookUrl *string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" || r.Form.Get("client_id") != "client" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error":"invalid_code"}`))
			return
		}
		fmt.Fprintf(w, `{
			"ok": true,
			"access_token": "xoxb-token",
			"token_type": "bot",
			"team": {"id": "T1", "name": "Judges"},
			"incoming_webhook": {"channel": "#announcements", "channel_id": "C1", "url": %q}
		}`, *webhookUrl)
	}))
	t.Cleanup(server.Close)
	return server
}

func testOAuthConfig(tokenUrl string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenUrl,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func callAuth(db *gorm.DB, conf *oauth2.Config, query string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/bot/auth", AuthHandler(db, conf))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/bot/auth"+query, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_ConnectsChannel(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	require.Nil(t, db.Create(&model.Source{
		Id: "announcements", Name: "Announcements", Kind: model.SourceKindManual, DefaultSource: true,
		Manual: &model.ManualSource{SourceID: "announcements"},
	}).Error)

	webhookUrl := "https://hooks.slack.com/services/1"
	conf := testOAuthConfig(slackTokenServer(t, &webhookUrl).URL)

	w := callAuth(db, conf, "?code=good-code")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var dest model.Destination
	require.Nil(t, db.Preload("Slack").First(&dest).Error)
	assert.Equal(t, "#announcements", dest.Name)
	assert.Equal(t, model.DestinationKindSlack, dest.Kind)
	assert.Equal(t, model.DefaultLanguageTags, dest.LanguageTags)
	assert.Equal(t, "T1", dest.Slack.TeamID)
	assert.Equal(t, "C1", dest.Slack.ChannelID)
	assert.Equal(t, webhookUrl, dest.Slack.Webhook)

	var routings []model.SourceRouting
	require.Nil(t, db.Find(&routings).Error)
	require.Len(t, routings, 1)
	assert.Equal(t, "announcements", routings[0].SourceID)
	assert.Equal(t, dest.Id, routings[0].DestinationID)
}

func TestAuthHandler_Reconnect(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	webhookUrl := "https://hooks.slack.com/services/1"
	conf := testOAuthConfig(slackTokenServer(t, &webhookUrl).URL)

	require.Equal(t, http.StatusOK, callAuth(db, conf, "?code=good-code").Code)
	var first model.Destination
	require.Nil(t, db.First(&first).Error)
	require.Nil(t, db.Delete(&first).Error)

	webhookUrl = "https://hooks.slack.com/services/2"
	require.Equal(t, http.StatusOK, callAuth(db, conf, "?code=good-code").Code)

	var destinations []model.Destination
	require.Nil(t, db.Preload("Slack").Find(&destinations).Error)
	require.Len(t, destinations, 1)
	assert.Equal(t, first.Id, destinations[0].Id)
	assert.Equal(t, webhookUrl, destinations[0].Slack.Webhook)
}

func TestAuthHandler_BadRequests(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	webhookUrl := "https://hooks.slack.com/services/1"
	conf := testOAuthConfig(slackTokenServer(t, &webhookUrl).URL)

	assert.Equal(t, http.StatusBadRequest, callAuth(db, conf, "").Code)
	assert.Equal(t, http.StatusBadRequest, callAuth(db, conf, "?code=bad-code").Code)

	var count int64
	db.Model(&model.Destination{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
