package model_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
)

func sourceOfKind(kind model.SourceKind) *model.Source {
	s := &model.Source{Id: "s-" + string(kind), Name: "Source " + string(kind), Kind: kind}
	switch kind {
	case model.SourceKindManual:
		s.Manual = &model.ManualSource{SourceID: s.Id}
	case model.SourceKindForum:
		s.Forum = &model.ForumSource{SourceID: s.Id, ForumID: 1, FeedType: model.ForumFeedPosts, PollingInterval: 10}
	case model.SourceKindBlog:
		s.Blog = &model.BlogSource{SourceID: s.Id, FeedURL: "https://blogs.magicjudges.org/feed/", PollingInterval: 10}
	case model.SourceKindExemplar:
		s.Exemplar = &model.ExemplarSource{SourceID: s.Id, WaveName: "Wave 1", LastReminder: model.DefaultLastReminder}
	}
	return s
}

func TestSourceVariant_AllKinds(t *testing.T) {
	for _, kind := range model.SourceKinds {
		s := sourceOfKind(kind)
		v, err := s.Variant()
		require.Nil(t, err, kind)
		assert.Equal(t, kind, v.SourceKind())
	}
}

func TestSourceVariant_Errors(t *testing.T) {
	_, err := (&model.Source{Id: "x", Kind: "Z"}).Variant()
	assert.True(t, errors.Is(err, model.ErrUnknownSourceKind))

	_, err = (&model.Source{Id: "x", Kind: model.SourceKindForum}).Variant()
	assert.True(t, errors.Is(err, model.ErrMissingVariant))
}

func TestForumSourceFeedURL(t *testing.T) {
	f := &model.ForumSource{ForumID: 42}
	for feedType, expected := range map[model.ForumFeedType]string{
		model.ForumFeedTopics:     "https://apps.magicjudges.org/forum/feed/forum/42/latest_topics/",
		model.ForumFeedPosts:      "https://apps.magicjudges.org/forum/feed/forum/42/latest_posts/",
		model.ForumFeedTopicPosts: "https://apps.magicjudges.org/forum/feed/topic/42/latest_posts/",
	} {
		f.FeedType = feedType
		url, err := f.FeedURL("https://apps.magicjudges.org")
		assert.Nil(t, err)
		assert.Equal(t, expected, url)
	}

	f.FeedType = "XX"
	_, err := f.FeedURL("https://apps.magicjudges.org")
	assert.NotNil(t, err)
}

func TestDueForPoll(t *testing.T) {
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, model.DueForPoll(nil, 10, now))

	last := now.Add(-9 * time.Minute)
	assert.False(t, model.DueForPoll(&last, 10, now))

	last = now.Add(-10 * time.Minute)
	assert.True(t, model.DueForPoll(&last, 10, now))

	last = now.Add(-11 * time.Minute)
	assert.True(t, model.DueForPoll(&last, 10, now))
}

func TestExemplarDueReminder(t *testing.T) {
	deadline := time.Date(2023, 3, 31, 23, 59, 0, 0, time.UTC)
	e := &model.ExemplarSource{WaveDeadline: deadline, LastReminder: model.DefaultLastReminder}

	// 20 days out, nothing due yet.
	_, ok, err := e.DueReminder(deadline.Add(-20 * 24 * time.Hour))
	require.Nil(t, err)
	assert.False(t, ok)

	// 5 days out, 14 and 7 are due and the smallest wins.
	days, ok, err := e.DueReminder(deadline.Add(-5 * 24 * time.Hour))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, days)

	// 2 days out with LastReminder 7, only 3 remains.
	e.LastReminder = 7
	days, ok, err = e.DueReminder(deadline.Add(-2 * 24 * time.Hour))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, days)

	// Exactly 3 days out counts as due, so the 3 day reminder is the only one
	// sent instead of 7 now and 3 on the next pass.
	e.LastReminder = model.DefaultLastReminder
	days, ok, err = e.DueReminder(deadline.Add(-3 * 24 * time.Hour))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, days)

	// Every threshold already sent.
	e.LastReminder = 3
	_, ok, err = e.DueReminder(deadline.Add(-time.Hour))
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestExemplarDueReminder_CustomThresholds(t *testing.T) {
	deadline := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	e := &model.ExemplarSource{
		WaveDeadline: deadline,
		LastReminder: model.DefaultLastReminder,
		Thresholds:   datatypes.JSON(`[10, 1]`),
	}
	days, ok, err := e.DueReminder(deadline.Add(-3 * 24 * time.Hour))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, days)

	e.Thresholds = datatypes.JSON(`"oops"`)
	_, _, err = e.DueReminder(deadline)
	assert.NotNil(t, err)
}

func TestManualSourceIsAuthorized(t *testing.T) {
	m := &model.ManualSource{AuthorizedUsers: []*model.User{{Id: "u1"}}}
	assert.True(t, m.IsAuthorized("u1"))
	assert.False(t, m.IsAuthorized("u2"))
	m.PublicSource = true
	assert.True(t, m.IsAuthorized("u2"))
}

func TestLoadSource(t *testing.T) {
	db, _ := utils.CreateTempDB(t)

	user := &model.User{Id: "u1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	require.Nil(t, db.Create(user).Error)

	manual := sourceOfKind(model.SourceKindManual)
	manual.Manual.AuthorizedUsers = []*model.User{user}
	require.Nil(t, db.Create(manual).Error)
	forum := sourceOfKind(model.SourceKindForum)
	require.Nil(t, db.Create(forum).Error)

	loaded, err := model.LoadSource(db, manual.Id)
	require.Nil(t, err)
	require.NotNil(t, loaded.Manual)
	assert.Nil(t, loaded.Forum)
	assert.True(t, loaded.Manual.IsAuthorized("u1"))

	loaded, err = model.LoadSource(db, forum.Id)
	require.Nil(t, err)
	require.NotNil(t, loaded.Forum)
	assert.Nil(t, loaded.Manual)
	assert.Equal(t, model.ForumFeedPosts, loaded.Forum.FeedType)

	_, err = model.LoadSource(db, "missing")
	assert.NotNil(t, err)
}

func TestListSources_Ordered(t *testing.T) {
	db, _ := utils.CreateTempDB(t)

	for i, kind := range model.SourceKinds {
		s := sourceOfKind(kind)
		s.SortOrder = len(model.SourceKinds) - i
		require.Nil(t, db.Create(s).Error)
	}

	sources, err := model.ListSources(db)
	require.Nil(t, err)
	require.Len(t, sources, len(model.SourceKinds))
	for i, s := range sources {
		assert.Equal(t, i+1, s.SortOrder)
		_, err := s.Variant()
		assert.Nil(t, err)
	}
}

func TestSourceKindImmutable(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	s := sourceOfKind(model.SourceKindBlog)
	require.Nil(t, db.Create(s).Error)

	require.Nil(t, db.Model(&model.Source{}).Where("id = ?", s.Id).
		Updates(map[string]interface{}{"kind": "F", "name": "Renamed"}).Error)

	var reloaded model.Source
	require.Nil(t, db.First(&reloaded, "id = ?", s.Id).Error)
	assert.Equal(t, model.SourceKindBlog, reloaded.Kind)
	assert.Equal(t, "Renamed", reloaded.Name)
}
