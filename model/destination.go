package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type DestinationKind string

const (
	DestinationKindSlack DestinationKind = "S"

	DefaultLanguageTags = "en-US"
)

var DestinationKinds = []DestinationKind{DestinationKindSlack}

var ErrUnknownDestinationKind = errors.New("unknown destination kind")

/*
Destination is a place announcements are delivered to.

Id: primary key
CreatedAt, UpdatedAt, DeletedAt: destinations are only soft deleted
Name: display name, for Slack the channel name
Kind: discriminant, written once on create
LanguageTags: comma separated BCP 47 tags, for example "en-US,de-DE". Only
announcements declaring a language are filtered by it
Admins: users allowed to change the subscriptions, "many-to-many" relation

Slack: payload for Kind "S"
*/
type Destination struct {
	Id           string    `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"<-:create"`
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
	Name         string
	Kind         DestinationKind `gorm:"<-:create;not null;size:1"`
	LanguageTags string          `gorm:"not null;size:200"`
	Admins       []*User         `gorm:"many2many:destination_admins;constraint:OnDelete:CASCADE;"`

	Slack *SlackDestination `gorm:"foreignKey:DestinationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type DestinationVariant interface {
	DestinationKind() DestinationKind
}

/*
SlackDestination is a Slack channel reached through an incoming webhook
provisioned by OAuth.

TeamID, ChannelID: ids provided by Slack, a channel is connected once
Webhook: incoming webhook url
*/
type SlackDestination struct {
	DestinationID string `gorm:"primaryKey"`
	TeamID        string `gorm:"size:32"`
	ChannelID     string `gorm:"size:32;uniqueIndex"`
	Webhook       string `gorm:"not null"`
}

func (*SlackDestination) DestinationKind() DestinationKind { return DestinationKindSlack }

// Variant is total over DestinationKind.
func (d *Destination) Variant() (DestinationVariant, error) {
	switch d.Kind {
	case DestinationKindSlack:
		if d.Slack == nil {
			return nil, errors.Wrapf(ErrMissingVariant, "destination %s of kind %s", d.Id, d.Kind)
		}
		return d.Slack, nil
	}
	return nil, errors.Wrapf(ErrUnknownDestinationKind, "destination %s has kind %q", d.Id, d.Kind)
}

// Languages returns the configured tags, defaulting to en-US.
func (d *Destination) Languages() []string {
	raw := d.LanguageTags
	if strings.TrimSpace(raw) == "" {
		raw = DefaultLanguageTags
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Wants checks whether an announcement should go to this destination. An
// announcement without a language is always wanted.
func (d *Destination) Wants(a *Announcement) bool {
	tag := a.LanguageTag()
	if tag == "" {
		return true
	}
	want := canonicalTag(tag)
	for _, t := range d.Languages() {
		if canonicalTag(t) == want {
			return true
		}
	}
	return false
}

// canonicalTag normalizes case and separators so en_us and en-US compare
// equal. Unparseable tags are compared verbatim.
func canonicalTag(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	parsed, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return parsed.String()
}
