package model

import "time"

/*
Message is one announcement going to one destination through one routing. It
is the unit of delivery and retry.

Id: primary key
AnnouncementID, SourceRoutingID: the pair, unique while the routing exists
DestinationID: copied from the routing so the message outlives it
Sent, SentAt: set once by a successful delivery
Attempts, LastError: failed deliveries so far and the latest failure
*/
type Message struct {
	Id              string    `gorm:"primaryKey"`
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
	AnnouncementID  string         `gorm:"not null;uniqueIndex:idx_message_pair,priority:1"`
	Announcement    *Announcement  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	SourceRoutingID *string        `gorm:"uniqueIndex:idx_message_pair,priority:2"`
	SourceRouting   *SourceRouting `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	DestinationID   string         `gorm:"not null;index"`
	Destination     *Destination   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	Sent            bool           `gorm:"not null;index"`
	SentAt          *time.Time
	Attempts        int `gorm:"not null"`
	LastError       string
}
