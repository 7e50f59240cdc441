package publisher

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
)

var (
	ErrEmptyAnnouncement = errors.New("an announcement needs a headline or a text")
	ErrNotManualSource   = errors.New("source does not accept manual announcements")
	ErrNotAuthorized     = errors.New("user may not post to this source")
	ErrUnknownUser       = errors.New("unknown user")
)

// ManualAnnouncementInput is what a user typed in the submission form.
type ManualAnnouncementInput struct {
	SourceID string `json:"source_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	Headline string `json:"headline"`
	Text     string `json:"text"`
	Url      string `json:"url"`
}

// SubmitManualAnnouncement validates a manual submission and stores it. The
// route stage picks it up like any collected announcement.
func SubmitManualAnnouncement(db *gorm.DB, input ManualAnnouncementInput, now time.Time) (*model.Announcement, error) {
	headline := strings.TrimSpace(input.Headline)
	text := strings.TrimSpace(input.Text)
	if headline == "" && text == "" {
		return nil, ErrEmptyAnnouncement
	}

	source, err := model.LoadSource(db, input.SourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrUnknownSource, "source %s", input.SourceID)
	}
	if err != nil {
		return nil, err
	}
	if source.Kind != model.SourceKindManual {
		return nil, errors.Wrapf(ErrNotManualSource, "source %s is %s", source.Name, source.Kind)
	}
	variant, err := source.Variant()
	if err != nil {
		return nil, err
	}

	var user model.User
	err = db.Where("id = ?", input.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrUnknownUser, "user %s", input.UserID)
	}
	if err != nil {
		return nil, err
	}
	if !variant.(*model.ManualSource).IsAuthorized(user.Id) {
		return nil, errors.Wrapf(ErrNotAuthorized, "user %s on source %s", user.Email, source.Name)
	}

	a, err := model.NewAnnouncement(source, &model.ManualAnnouncement{UserID: user.Id, User: &user}, now)
	if err != nil {
		return nil, err
	}
	a.Headline = headline
	a.Text = text
	a.Url = strings.TrimSpace(input.Url)
	if _, err := model.InsertAnnouncement(db, a); err != nil {
		return nil, errors.Wrap(err, "failed to store manual announcement")
	}
	return a, nil
}
