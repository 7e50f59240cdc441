package model

import "time"

/*
SourceRouting records that a destination subscribes to a source. It has its
own creation time: a destination only receives announcements created at or
after it subscribed.

Id: primary key
CreatedAt: time of subscription
SourceID, DestinationID: the pair, unique

Deleting a routing keeps its messages, their routing id becomes null.
*/
type SourceRouting struct {
	Id            string    `gorm:"primaryKey"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
	SourceID      string       `gorm:"not null;uniqueIndex:idx_routing_pair,priority:1"`
	Source        *Source      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	DestinationID string       `gorm:"not null;uniqueIndex:idx_routing_pair,priority:2"`
	Destination   *Destination `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
