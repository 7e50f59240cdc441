package model

// AllModels lists every table, in the order AutoMigrate should see them.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Source{},
		&ManualSource{},
		&ForumSource{},
		&BlogSource{},
		&ExemplarSource{},
		&Announcement{},
		&ManualAnnouncement{},
		&ForumAnnouncement{},
		&BlogAnnouncement{},
		&ExemplarAnnouncement{},
		&Destination{},
		&SlackDestination{},
		&SourceRouting{},
		&Message{},
		&AdMessage{},
	}
}
