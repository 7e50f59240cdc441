package app_config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
)

var (
	ErrKindChanged  = errors.New("the kind of an existing source cannot change")
	ErrInvalidSeed  = errors.New("invalid seed")
	ErrUnknownEmail = errors.New("authorized user is not declared")
)

// Seed is the YAML document operators use to declare sources, users and
// footer messages. Entities are matched by their natural key: users by email,
// sources by name, footer messages by text.
type Seed struct {
	Users      []SeedUser      `yaml:"users"`
	Sources    []SeedSource    `yaml:"sources"`
	AdMessages []SeedAdMessage `yaml:"ad_messages"`
}

type SeedUser struct {
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

type SeedSource struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	SortOrder     int    `yaml:"sort_order"`
	DefaultSource bool   `yaml:"default_source"`
	// manual, forum, blog or exemplar.
	KindName string `yaml:"kind"`

	ManualSettings   *SeedManual   `yaml:"manual"`
	ForumSettings    *SeedForum    `yaml:"forum"`
	BlogSettings     *SeedBlog     `yaml:"blog"`
	ExemplarSettings *SeedExemplar `yaml:"exemplar"`
}

type SeedManual struct {
	PublicSource bool `yaml:"public_source"`
	// Emails of users declared in the same seed or imported before.
	AuthorizedEmails []string `yaml:"authorized_users"`
}

type SeedForum struct {
	ForumID         int    `yaml:"forum_id"`
	FeedTypeCode    string `yaml:"feed_type"`
	PollingInterval int    `yaml:"polling_interval"`
}

type SeedBlog struct {
	FeedURL         string `yaml:"feed_url"`
	PollingInterval int    `yaml:"polling_interval"`
}

type SeedExemplar struct {
	WaveID       int       `yaml:"wave_id"`
	WaveName     string    `yaml:"wave_name"`
	WaveDeadline time.Time `yaml:"wave_deadline"`
	ReminderDays []int     `yaml:"thresholds"`
}

type SeedAdMessage struct {
	Text string `yaml:"text"`
	Live bool   `yaml:"live"`
}

// ImportResult counts what an import changed.
type ImportResult struct {
	UsersCreated      int
	UsersUpdated      int
	SourcesCreated    int
	SourcesUpdated    int
	AdMessagesCreated int
	AdMessagesUpdated int
}

func ParseSeed(data []byte) (Seed, error) {
	seed := Seed{}
	if err := yaml.UnmarshalStrict(data, &seed); err != nil {
		return seed, errors.Wrap(err, "cannot parse seed")
	}
	return seed, nil
}

func ParseSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, errors.Wrapf(err, "cannot read seed %s", path)
	}
	return ParseSeed(data)
}

func parseKind(kind string) (model.SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "manual", "m":
		return model.SourceKindManual, nil
	case "forum", "f":
		return model.SourceKindForum, nil
	case "blog", "b":
		return model.SourceKindBlog, nil
	case "exemplar", "e":
		return model.SourceKindExemplar, nil
	}
	return "", errors.Wrapf(model.ErrUnknownSourceKind, "%q", kind)
}

// Import applies the seed in one transaction. Importing the same seed twice
// changes nothing the second time, and runtime state such as last poll times
// and sent reminders is kept.
func Import(db *gorm.DB, seed Seed) (ImportResult, error) {
	var res ImportResult
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, u := range seed.Users {
			if err := importUser(tx, u, &res); err != nil {
				return errors.Wrapf(err, "user %s", u.Email)
			}
		}
		for _, s := range seed.Sources {
			if err := importSource(tx, s, &res); err != nil {
				return errors.Wrapf(err, "source %s", s.Name)
			}
		}
		for _, m := range seed.AdMessages {
			if err := importAdMessage(tx, m, &res); err != nil {
				return errors.Wrapf(err, "footer message %q", m.Text)
			}
		}
		return nil
	})
	return res, err
}

func importUser(tx *gorm.DB, su SeedUser, res *ImportResult) error {
	if strings.TrimSpace(su.Email) == "" {
		return errors.Wrap(ErrInvalidSeed, "email is required")
	}
	var user model.User
	err := tx.Where("email = ?", su.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = model.User{Id: uuid.New().String()}
		if err := copier.Copy(&user, &su); err != nil {
			return err
		}
		res.UsersCreated++
		return tx.Create(&user).Error
	}
	if err != nil {
		return err
	}
	if user.FirstName == su.FirstName && user.LastName == su.LastName {
		return nil
	}
	if err := copier.Copy(&user, &su); err != nil {
		return err
	}
	res.UsersUpdated++
	return tx.Model(&user).Select("FirstName", "LastName").Updates(&user).Error
}

func usersByEmail(tx *gorm.DB, emails []string) ([]*model.User, error) {
	users := []*model.User{}
	if len(emails) == 0 {
		return users, nil
	}
	if err := tx.Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) != len(emails) {
		found := map[string]bool{}
		for _, u := range users {
			found[u.Email] = true
		}
		for _, e := range emails {
			if !found[e] {
				return nil, errors.Wrapf(ErrUnknownEmail, "%s", e)
			}
		}
	}
	return users, nil
}

// payloadOf validates the seed payload of kind and converts it.
func payloadOf(tx *gorm.DB, kind model.SourceKind, ss SeedSource) (model.SourceVariant, []*model.User, error) {
	switch kind {
	case model.SourceKindManual:
		manual := &model.ManualSource{}
		var emails []string
		if ss.ManualSettings != nil {
			if err := copier.Copy(manual, ss.ManualSettings); err != nil {
				return nil, nil, err
			}
			emails = ss.ManualSettings.AuthorizedEmails
		}
		users, err := usersByEmail(tx, emails)
		return manual, users, err
	case model.SourceKindForum:
		if ss.ForumSettings == nil {
			return nil, nil, errors.Wrap(ErrInvalidSeed, "forum settings are required")
		}
		forum := &model.ForumSource{}
		if err := copier.Copy(forum, ss.ForumSettings); err != nil {
			return nil, nil, err
		}
		forum.FeedType = model.ForumFeedType(ss.ForumSettings.FeedTypeCode)
		if _, err := forum.FeedURL(""); err != nil {
			return nil, nil, errors.Wrap(ErrInvalidSeed, err.Error())
		}
		if forum.PollingInterval <= 0 {
			forum.PollingInterval = model.DefaultPollingInterval
		}
		return forum, nil, nil
	case model.SourceKindBlog:
		if ss.BlogSettings == nil || ss.BlogSettings.FeedURL == "" {
			return nil, nil, errors.Wrap(ErrInvalidSeed, "blog feed_url is required")
		}
		blog := &model.BlogSource{}
		if err := copier.Copy(blog, ss.BlogSettings); err != nil {
			return nil, nil, err
		}
		if blog.PollingInterval <= 0 {
			blog.PollingInterval = model.DefaultPollingInterval
		}
		return blog, nil, nil
	case model.SourceKindExemplar:
		if ss.ExemplarSettings == nil || ss.ExemplarSettings.WaveName == "" || ss.ExemplarSettings.WaveDeadline.IsZero() {
			return nil, nil, errors.Wrap(ErrInvalidSeed, "exemplar wave_name and wave_deadline are required")
		}
		exemplar := &model.ExemplarSource{LastReminder: model.DefaultLastReminder}
		if err := copier.Copy(exemplar, ss.ExemplarSettings); err != nil {
			return nil, nil, err
		}
		exemplar.WaveDeadline = exemplar.WaveDeadline.UTC()
		if len(ss.ExemplarSettings.ReminderDays) > 0 {
			raw, err := json.Marshal(ss.ExemplarSettings.ReminderDays)
			if err != nil {
				return nil, nil, err
			}
			exemplar.Thresholds = datatypes.JSON(raw)
		}
		return exemplar, nil, nil
	}
	return nil, nil, errors.Wrapf(model.ErrUnknownSourceKind, "%q", kind)
}

func importSource(tx *gorm.DB, ss SeedSource, res *ImportResult) error {
	if strings.TrimSpace(ss.Name) == "" {
		return errors.Wrap(ErrInvalidSeed, "name is required")
	}
	kind, err := parseKind(ss.KindName)
	if err != nil {
		return err
	}
	payload, users, err := payloadOf(tx, kind, ss)
	if err != nil {
		return err
	}

	var existing model.Source
	err = tx.Where("name = ?", ss.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		source := model.Source{Id: uuid.New().String(), Kind: kind}
		if err := copier.Copy(&source, &ss); err != nil {
			return err
		}
		switch p := payload.(type) {
		case *model.ManualSource:
			p.AuthorizedUsers = users
			source.Manual = p
		case *model.ForumSource:
			source.Forum = p
		case *model.BlogSource:
			source.Blog = p
		case *model.ExemplarSource:
			source.Exemplar = p
		}
		res.SourcesCreated++
		return tx.Create(&source).Error
	}
	if err != nil {
		return err
	}
	if existing.Kind != kind {
		return errors.Wrapf(ErrKindChanged, "%s to %s", existing.Kind, kind)
	}

	if err := copier.Copy(&existing, &ss); err != nil {
		return err
	}
	if err := tx.Model(&existing).
		Select("Description", "SortOrder", "DefaultSource").
		Updates(&existing).Error; err != nil {
		return err
	}
	if err := updatePayload(tx, existing.Id, payload, users); err != nil {
		return err
	}
	res.SourcesUpdated++
	return nil
}

// updatePayload rewrites the declared settings of a payload and leaves the
// runtime columns alone.
func updatePayload(tx *gorm.DB, sourceId string, payload model.SourceVariant, users []*model.User) error {
	switch p := payload.(type) {
	case *model.ManualSource:
		manual := &model.ManualSource{SourceID: sourceId}
		if err := tx.Model(manual).Select("PublicSource").Updates(p).Error; err != nil {
			return err
		}
		return tx.Model(manual).Association("AuthorizedUsers").Replace(users)
	case *model.ForumSource:
		return tx.Model(&model.ForumSource{SourceID: sourceId}).
			Select("ForumID", "FeedType", "PollingInterval").Updates(p).Error
	case *model.BlogSource:
		return tx.Model(&model.BlogSource{SourceID: sourceId}).
			Select("FeedURL", "PollingInterval").Updates(p).Error
	case *model.ExemplarSource:
		var current model.ExemplarSource
		if err := tx.First(&current, "source_id = ?", sourceId).Error; err != nil {
			return err
		}
		columns := []interface{}{"WaveName", "WaveDeadline", "Thresholds"}
		// A new wave starts its reminders from scratch.
		if current.WaveID != p.WaveID {
			columns = append(columns, "WaveID", "LastReminder")
		}
		return tx.Model(&current).Select(columns[0], columns[1:]...).Updates(p).Error
	}
	return errors.Wrapf(model.ErrUnknownSourceKind, "source %s", sourceId)
}

func importAdMessage(tx *gorm.DB, sm SeedAdMessage, res *ImportResult) error {
	if strings.TrimSpace(sm.Text) == "" {
		return errors.Wrap(ErrInvalidSeed, "text is required")
	}
	var msg model.AdMessage
	err := tx.Where("text = ?", sm.Text).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		msg = model.AdMessage{Id: uuid.New().String()}
		if err := copier.Copy(&msg, &sm); err != nil {
			return err
		}
		res.AdMessagesCreated++
		return tx.Create(&msg).Error
	}
	if err != nil {
		return err
	}
	if msg.Live == sm.Live {
		return nil
	}
	res.AdMessagesUpdated++
	return tx.Model(&msg).Update("live", sm.Live).Error
}
