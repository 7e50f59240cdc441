package model

import (
	"strings"
	"time"
)

/*
User is a person who can administer destinations or post to manual sources.
Authentication happens outside this service, only the identity is stored.

Id: primary key
CreatedAt: time when entity is created
FirstName, LastName: used to render "Submitted by" lines
Email: unique contact address, used as the natural key by the seed importer
*/
type User struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	FirstName string
	LastName  string
	Email     string `gorm:"uniqueIndex"`
}

// FullName mirrors how the submitter is shown in Slack, first name first.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
