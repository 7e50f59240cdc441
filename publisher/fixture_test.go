package publisher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/publisher"
	"github.com/magicjudges/announcer/utils"
)

var (
	subscribedAt = time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)
	postedAt     = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
)

func createUser(t *testing.T, db *gorm.DB, id string) *model.User {
	u := &model.User{Id: id, FirstName: "Jane", LastName: "Doe", Email: id + "@example.org"}
	require.Nil(t, db.Create(u).Error)
	return u
}

func createManualSource(t *testing.T, db *gorm.DB, id string, defaultSource bool, authorized ...*model.User) *model.Source {
	s := &model.Source{
		Id:            id,
		Name:          "Source " + id,
		Kind:          model.SourceKindManual,
		DefaultSource: defaultSource,
		Manual:        &model.ManualSource{SourceID: id, AuthorizedUsers: authorized},
	}
	require.Nil(t, db.Create(s).Error)
	return s
}

func createSlackDestination(t *testing.T, db *gorm.DB, id string, webhook string, languages string) *model.Destination {
	d := &model.Destination{
		Id:           id,
		Name:         "#" + id,
		Kind:         model.DestinationKindSlack,
		LanguageTags: languages,
		Slack:        &model.SlackDestination{DestinationID: id, TeamID: "T1", ChannelID: "C-" + id, Webhook: webhook},
	}
	require.Nil(t, db.Create(d).Error)
	return d
}

// subscribeAt creates a routing and backdates it.
func subscribeAt(t *testing.T, db *gorm.DB, destinationId string, sourceId string, at time.Time) *model.SourceRouting {
	routing, created, err := publisher.Subscribe(db, destinationId, sourceId)
	require.Nil(t, err)
	require.True(t, created)
	require.Nil(t, db.Model(routing).Update("created_at", at).Error)
	routing.CreatedAt = at
	return routing
}

func postManual(t *testing.T, db *gorm.DB, source *model.Source, user *model.User, headline string, at time.Time) *model.Announcement {
	a, err := publisher.SubmitManualAnnouncement(db, publisher.ManualAnnouncementInput{
		SourceID: source.Id,
		UserID:   user.Id,
		Headline: headline,
	}, at)
	require.Nil(t, err)
	return a
}

func newDB(t *testing.T) *gorm.DB {
	db, _ := utils.CreateTempDB(t)
	return db
}

// recordingSender remembers deliveries and fails for the listed destinations.
type recordingSender struct {
	mu        sync.Mutex
	delivered map[string][]string
	failFor   map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{delivered: map[string][]string{}, failFor: map[string]bool{}}
}

func (s *recordingSender) Deliver(ctx context.Context, dest *model.Destination, a *model.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[dest.Id] {
		return errors.Errorf("endpoint of %s is down", dest.Id)
	}
	s.delivered[dest.Id] = append(s.delivered[dest.Id], a.Headline)
	return nil
}

func (s *recordingSender) Delivered(destinationId string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered[destinationId]...)
}

func loadMessages(t *testing.T, db *gorm.DB) []*model.Message {
	var messages []*model.Message
	require.Nil(t, db.Order("created_at, id").Find(&messages).Error)
	return messages
}
