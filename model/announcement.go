package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrAnnouncementImmutable = errors.New("announcements are immutable")
	ErrKindMismatch          = errors.New("announcement payload does not match source kind")
)

/*
Announcement is one unit of content captured from a source. It is never
updated nor deleted after creation.

Id: primary key
CreatedAt: time when entity is created, compared against routing creation
time to decide who receives it
SourceID, Source: originating source, "belongs-to" relation. Sources cannot be
deleted while announcements point at them
Kind: mirrors Source.Kind
Headline, Text, Url: shared content fields, Text is Slack mrkdwn
DedupKey: canonical permalink for feed entries, nil otherwise. Unique per
source, so a re-poll never duplicates an entry

Manual, Forum, Blog, Exemplar: kind specific payload
*/
type Announcement struct {
	Id        string     `gorm:"primaryKey"`
	CreatedAt time.Time  `gorm:"<-:create;index"`
	SourceID  string     `gorm:"not null;index;uniqueIndex:idx_announcement_dedup,priority:1"`
	Source    *Source    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	Kind      SourceKind `gorm:"<-:create;not null;size:1"`
	Headline  string
	Text      string
	Url       string
	DedupKey  *string `gorm:"uniqueIndex:idx_announcement_dedup,priority:2"`

	Manual   *ManualAnnouncement   `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE;"`
	Forum    *ForumAnnouncement    `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE;"`
	Blog     *BlogAnnouncement     `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE;"`
	Exemplar *ExemplarAnnouncement `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE;"`
}

func (a *Announcement) BeforeUpdate(tx *gorm.DB) error {
	return errors.Wrapf(ErrAnnouncementImmutable, "announcement %s", a.Id)
}

// AnnouncementVariant is implemented by the payload types only.
type AnnouncementVariant interface {
	AnnouncementKind() SourceKind
	setAnnouncementID(id string)
}

// ManualAnnouncement records who typed the announcement.
type ManualAnnouncement struct {
	AnnouncementID string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index"`
	User           *User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
}

func (*ManualAnnouncement) AnnouncementKind() SourceKind  { return SourceKindManual }
func (m *ManualAnnouncement) setAnnouncementID(id string) { m.AnnouncementID = id }

type ForumAnnouncement struct {
	AnnouncementID string `gorm:"primaryKey"`
	AuthorName     string
	AuthorUrl      string
	PostDatetime   time.Time
}

func (*ForumAnnouncement) AnnouncementKind() SourceKind  { return SourceKindForum }
func (f *ForumAnnouncement) setAnnouncementID(id string) { f.AnnouncementID = id }

// BlogAnnouncement carries the language of the post, which destinations use
// to veto delivery.
type BlogAnnouncement struct {
	AnnouncementID string `gorm:"primaryKey"`
	LanguageTag    string `gorm:"size:35"`
	AuthorName     string
	PostDatetime   time.Time
}

func (*BlogAnnouncement) AnnouncementKind() SourceKind  { return SourceKindBlog }
func (b *BlogAnnouncement) setAnnouncementID(id string) { b.AnnouncementID = id }

/*
ExemplarAnnouncement snapshots the wave it reminds about, so later changes of
the source do not alter what was announced.

DaysOut: nominal number of days until the wave closes
WaveID, WaveName, WaveDeadline: the wave in question
*/
type ExemplarAnnouncement struct {
	AnnouncementID string `gorm:"primaryKey"`
	DaysOut        int
	WaveID         int
	WaveName       string
	WaveDeadline   time.Time
}

func (*ExemplarAnnouncement) AnnouncementKind() SourceKind  { return SourceKindExemplar }
func (e *ExemplarAnnouncement) setAnnouncementID(id string) { e.AnnouncementID = id }

// NewAnnouncement builds an announcement of the source's kind. The payload
// must be the variant matching the source kind.
func NewAnnouncement(source *Source, payload AnnouncementVariant, createdAt time.Time) (*Announcement, error) {
	if payload == nil || payload.AnnouncementKind() != source.Kind {
		return nil, errors.Wrapf(ErrKindMismatch, "source %s is %s", source.Id, source.Kind)
	}
	a := &Announcement{
		Id:        uuid.New().String(),
		CreatedAt: createdAt,
		SourceID:  source.Id,
		Source:    source,
		Kind:      source.Kind,
	}
	payload.setAnnouncementID(a.Id)
	switch p := payload.(type) {
	case *ManualAnnouncement:
		a.Manual = p
	case *ForumAnnouncement:
		a.Forum = p
	case *BlogAnnouncement:
		a.Blog = p
	case *ExemplarAnnouncement:
		a.Exemplar = p
	}
	return a, nil
}

// Variant resolves the payload named by Kind, like Source.Variant.
func (a *Announcement) Variant() (AnnouncementVariant, error) {
	var v AnnouncementVariant
	switch a.Kind {
	case SourceKindManual:
		if a.Manual != nil {
			v = a.Manual
		}
	case SourceKindForum:
		if a.Forum != nil {
			v = a.Forum
		}
	case SourceKindBlog:
		if a.Blog != nil {
			v = a.Blog
		}
	case SourceKindExemplar:
		if a.Exemplar != nil {
			v = a.Exemplar
		}
	default:
		return nil, errors.Wrapf(ErrUnknownSourceKind, "announcement %s has kind %q", a.Id, a.Kind)
	}
	if v == nil {
		return nil, errors.Wrapf(ErrMissingVariant, "announcement %s of kind %s", a.Id, a.Kind)
	}
	return v, nil
}

// LanguageTag is the content language, empty when the kind declares none.
func (a *Announcement) LanguageTag() string {
	if a.Kind == SourceKindBlog && a.Blog != nil {
		return a.Blog.LanguageTag
	}
	return ""
}

// InsertAnnouncement stores the base row and its payload in one transaction.
// When the dedup key already exists for the source nothing is written and
// created is false.
func InsertAnnouncement(db *gorm.DB, a *Announcement) (created bool, err error) {
	variant, err := a.Variant()
	if err != nil {
		return false, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clauseAssociations).Clauses(onConflictDoNothing).Create(a)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Omit(clauseAssociations).Create(variant).Error
	})
	return created, err
}

// AnnouncementExists reports whether source already has an entry with key.
func AnnouncementExists(db *gorm.DB, sourceId string, dedupKey string) (bool, error) {
	var count int64
	err := db.Model(&Announcement{}).
		Where("source_id = ? AND dedup_key = ?", sourceId, dedupKey).
		Count(&count).Error
	return count > 0, err
}

// PreloadAnnouncementForRender loads everything a renderer reads.
func PreloadAnnouncementForRender(db *gorm.DB, prefix string) *gorm.DB {
	return db.
		Preload(prefix + "Source").
		Preload(prefix + "Source.Forum").
		Preload(prefix + "Manual").
		Preload(prefix + "Manual.User").
		Preload(prefix + "Forum").
		Preload(prefix + "Blog").
		Preload(prefix + "Exemplar")
}
