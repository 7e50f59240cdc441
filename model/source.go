package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SourceKind is the discriminant of the Source tagged union. Announcement
// kinds use the same values.
type SourceKind string

const (
	SourceKindManual   SourceKind = "M"
	SourceKindForum    SourceKind = "F"
	SourceKindBlog     SourceKind = "B"
	SourceKindExemplar SourceKind = "E"
)

// SourceKinds lists every kind, tests use it to check that all resolvers
// stay exhaustive.
var SourceKinds = []SourceKind{SourceKindManual, SourceKindForum, SourceKindBlog, SourceKindExemplar}

func (k SourceKind) String() string {
	switch k {
	case SourceKindManual:
		return "Manual Announcement"
	case SourceKindForum:
		return "JudgeApps Forum Post"
	case SourceKindBlog:
		return "WordPress Blog"
	case SourceKindExemplar:
		return "Exemplar Deadline"
	}
	return fmt.Sprintf("unknown(%s)", string(k))
}

var (
	ErrUnknownSourceKind = errors.New("unknown source kind")
	ErrMissingVariant    = errors.New("variant payload not loaded")
)

/*
Source is where announcements come from.

Id: primary key
CreatedAt: time when entity is created, feed entries published before it are
never imported
Name, Description: display name and help text
SortOrder: key to sort by in user-facing views
DefaultSource: default sources are subscribed by newly connected destinations
Kind: discriminant, written once on create and never updated

Manual, Forum, Blog, Exemplar: kind specific payload, exactly one matches Kind
*/
type Source struct {
	Id            string    `gorm:"primaryKey"`
	CreatedAt     time.Time `gorm:"<-:create"`
	UpdatedAt     time.Time
	Name          string
	Description   string
	SortOrder     int        `gorm:"index"`
	DefaultSource bool       `gorm:"not null"`
	Kind          SourceKind `gorm:"<-:create;not null;size:1"`

	Manual   *ManualSource   `gorm:"foreignKey:SourceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Forum    *ForumSource    `gorm:"foreignKey:SourceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Blog     *BlogSource     `gorm:"foreignKey:SourceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Exemplar *ExemplarSource `gorm:"foreignKey:SourceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// SourceVariant is implemented by the payload types only.
type SourceVariant interface {
	SourceKind() SourceKind
}

/*
ManualSource receives announcements typed by authorized users.

AuthorizedUsers: users allowed to post, "many-to-many" relation
PublicSource: allow any user to send to this source, for example a testing
source
*/
type ManualSource struct {
	SourceID        string  `gorm:"primaryKey"`
	PublicSource    bool    `gorm:"not null"`
	AuthorizedUsers []*User `gorm:"many2many:manual_source_authorized_users;constraint:OnDelete:CASCADE;"`
}

func (*ManualSource) SourceKind() SourceKind { return SourceKindManual }

// IsAuthorized reports whether userId may post to this source.
func (m *ManualSource) IsAuthorized(userId string) bool {
	if m.PublicSource {
		return true
	}
	for _, u := range m.AuthorizedUsers {
		if u.Id == userId {
			return true
		}
	}
	return false
}

type ForumFeedType string

const (
	ForumFeedTopics     ForumFeedType = "FT"
	ForumFeedPosts      ForumFeedType = "FP"
	ForumFeedTopicPosts ForumFeedType = "TP"
)

// DefaultPollingInterval is used by the importer when a feed source omits one.
const DefaultPollingInterval = 10

/*
ForumSource polls a JudgeApps forum feed, which requires a logged in session.

ForumID: JudgeApps id of the forum, or of the topic for TP feeds
FeedType: FT new topics in a forum, FP new posts in a forum, TP new posts in a
topic
PollingInterval: minutes between two polls
LastPolled: last successful poll, nil before the first one
*/
type ForumSource struct {
	SourceID        string        `gorm:"primaryKey"`
	ForumID         int           `gorm:"not null"`
	FeedType        ForumFeedType `gorm:"not null;size:2"`
	PollingInterval int           `gorm:"not null"`
	LastPolled      *time.Time
}

func (*ForumSource) SourceKind() SourceKind { return SourceKindForum }

// FeedURL builds the feed path of this forum under the JudgeApps root.
func (f *ForumSource) FeedURL(baseURL string) (string, error) {
	switch f.FeedType {
	case ForumFeedTopics:
		return fmt.Sprintf("%s/forum/feed/forum/%d/latest_topics/", baseURL, f.ForumID), nil
	case ForumFeedPosts:
		return fmt.Sprintf("%s/forum/feed/forum/%d/latest_posts/", baseURL, f.ForumID), nil
	case ForumFeedTopicPosts:
		return fmt.Sprintf("%s/forum/feed/topic/%d/latest_posts/", baseURL, f.ForumID), nil
	}
	return "", errors.Errorf("unknown forum feed type %q", f.FeedType)
}

// BlogSource polls a public WordPress blog feed.
type BlogSource struct {
	SourceID        string `gorm:"primaryKey"`
	FeedURL         string `gorm:"not null"`
	PollingInterval int    `gorm:"not null"`
	LastPolled      *time.Time
}

func (*BlogSource) SourceKind() SourceKind { return SourceKindBlog }

// DueForPoll tells whether a feed-backed source should be polled at now. A
// source that was never polled is always due.
func DueForPoll(lastPolled *time.Time, intervalMinutes int, now time.Time) bool {
	if lastPolled == nil {
		return true
	}
	return !now.Before(lastPolled.Add(time.Duration(intervalMinutes) * time.Minute))
}

const DefaultLastReminder = 99

var DefaultReminderThresholds = []int{14, 7, 3}

/*
ExemplarSource reminds judges that the current Exemplar wave is closing.

WaveID, WaveName, WaveDeadline: the current wave in JudgeApps
LastReminder: days-before-deadline of the last reminder sent, starts above
every threshold
Thresholds: JSON list of days-before-deadline at which a reminder is due,
[14,7,3] when empty
*/
type ExemplarSource struct {
	SourceID     string    `gorm:"primaryKey"`
	WaveID       int       `gorm:"not null"`
	WaveName     string    `gorm:"not null"`
	WaveDeadline time.Time `gorm:"not null"`
	LastReminder int       `gorm:"not null"`
	Thresholds   datatypes.JSON
}

func (*ExemplarSource) SourceKind() SourceKind { return SourceKindExemplar }

// ReminderThresholds decodes Thresholds, falling back to the defaults.
func (e *ExemplarSource) ReminderThresholds() ([]int, error) {
	if len(e.Thresholds) == 0 {
		return DefaultReminderThresholds, nil
	}
	var days []int
	if err := json.Unmarshal(e.Thresholds, &days); err != nil {
		return nil, errors.Wrapf(err, "bad thresholds for exemplar source %s", e.SourceID)
	}
	if len(days) == 0 {
		return DefaultReminderThresholds, nil
	}
	return days, nil
}

// DueReminder returns the reminder to send at now, or ok=false. A threshold
// of d days is due once now + d days reaches the deadline. Among the
// thresholds below LastReminder that are already due, the smallest wins.
func (e *ExemplarSource) DueReminder(now time.Time) (days int, ok bool, err error) {
	thresholds, err := e.ReminderThresholds()
	if err != nil {
		return 0, false, err
	}
	for _, d := range thresholds {
		if d >= e.LastReminder {
			continue
		}
		if now.Add(time.Duration(d) * 24 * time.Hour).Before(e.WaveDeadline) {
			continue
		}
		if !ok || d < days {
			days, ok = d, true
		}
	}
	return days, ok, nil
}

// Variant resolves the payload named by Kind. It is total over SourceKind,
// any other discriminant is a configuration error.
func (s *Source) Variant() (SourceVariant, error) {
	var v SourceVariant
	switch s.Kind {
	case SourceKindManual:
		if s.Manual != nil {
			v = s.Manual
		}
	case SourceKindForum:
		if s.Forum != nil {
			v = s.Forum
		}
	case SourceKindBlog:
		if s.Blog != nil {
			v = s.Blog
		}
	case SourceKindExemplar:
		if s.Exemplar != nil {
			v = s.Exemplar
		}
	default:
		return nil, errors.Wrapf(ErrUnknownSourceKind, "source %s has kind %q", s.Id, s.Kind)
	}
	if v == nil {
		return nil, errors.Wrapf(ErrMissingVariant, "source %s of kind %s", s.Id, s.Kind)
	}
	return v, nil
}

// variantAssociation names the has-one association holding the payload.
func (k SourceKind) variantAssociation() (string, error) {
	switch k {
	case SourceKindManual:
		return "Manual", nil
	case SourceKindForum:
		return "Forum", nil
	case SourceKindBlog:
		return "Blog", nil
	case SourceKindExemplar:
		return "Exemplar", nil
	}
	return "", errors.Wrapf(ErrUnknownSourceKind, "kind %q", k)
}

// LoadSource reads one source and only the payload its discriminant names.
func LoadSource(db *gorm.DB, id string) (*Source, error) {
	var source Source
	if err := db.First(&source, "id = ?", id).Error; err != nil {
		return nil, err
	}
	association, err := source.Kind.variantAssociation()
	if err != nil {
		return nil, errors.Wrapf(err, "source %s", id)
	}
	q := db.Preload(association)
	if source.Kind == SourceKindManual {
		q = q.Preload("Manual.AuthorizedUsers")
	}
	if err := q.First(&source, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// PreloadSourceVariants preloads every payload, for scans over all sources.
func PreloadSourceVariants(db *gorm.DB) *gorm.DB {
	return db.Preload("Manual").Preload("Forum").Preload("Blog").Preload("Exemplar")
}

// ListSources returns all sources in their user-facing order.
func ListSources(db *gorm.DB) ([]*Source, error) {
	var sources []*Source
	err := PreloadSourceVariants(db).Order("sort_order").Order("created_at").Find(&sources).Error
	return sources, err
}
