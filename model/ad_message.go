package model

/*
AdMessage is a short markdown line like "Developed on GitHub. Pull requests
welcome!". One live message is picked at random for the context section of
every delivered announcement.
*/
type AdMessage struct {
	Id   string `gorm:"primaryKey"`
	Text string `gorm:"not null"`
	Live bool   `gorm:"not null;index"`
}
