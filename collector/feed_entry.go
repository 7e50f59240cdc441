package collector

import (
	"context"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/model"
	Logger "github.com/magicjudges/announcer/utils/log"
)

var ErrMalformedEntry = errors.New("malformed feed entry")

// feedEntry is what forum and blog entries have in common once parsed.
type feedEntry struct {
	Headline  string
	Url       string
	Html      string
	Published time.Time
}

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedEntry, format, args...)
}

// publishedTime prefers the time the feed parser understood and falls back to
// a lenient parse of the raw string.
func publishedTime(parsed *time.Time, raw string) (time.Time, error) {
	if parsed != nil {
		return parsed.UTC(), nil
	}
	if raw == "" {
		return time.Time{}, malformed("no published time")
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, malformed("unparseable published time %q", raw)
	}
	return t.UTC(), nil
}

// storeEntry persists one entry unless it is already known or older than the
// source. buildPayload runs only for entries that will be stored, it may be
// expensive.
func (c *Collector) storeEntry(
	ctx context.Context,
	source *model.Source,
	entry feedEntry,
	now time.Time,
	buildPayload func() (model.AnnouncementVariant, error),
) (model.StageResult, error) {
	res := model.StageResult{Processed: 1}
	db := c.DB.WithContext(ctx)
	logger := Logger.Log.WithFields(logrus.Fields{"source_id": source.Id, "url": entry.Url})

	exists, err := model.AnnouncementExists(db, source.Id, entry.Url)
	if err != nil {
		return res, err
	}
	if exists {
		res.Skipped++
		return res, nil
	}
	if entry.Published.Before(source.CreatedAt) {
		logger.Debug("entry predates source, skipped")
		res.Skipped++
		return res, nil
	}

	payload, err := buildPayload()
	if errors.Is(err, ErrMalformedEntry) {
		logger.WithError(err).Warn("skip malformed entry")
		res.Skipped++
		return res, nil
	}
	if err != nil {
		return res, err
	}

	text, err := HtmlToMrkdwn(entry.Html)
	if err != nil {
		logger.WithError(err).Warn("skip entry with unreadable body")
		res.Skipped++
		return res, nil
	}

	announcement, err := model.NewAnnouncement(source, payload, now)
	if err != nil {
		return res, err
	}
	announcement.Headline = entry.Headline
	announcement.Text = text
	announcement.Url = entry.Url
	dedupKey := entry.Url
	announcement.DedupKey = &dedupKey

	created, err := model.InsertAnnouncement(db, announcement)
	if err != nil {
		return res, errors.Wrapf(err, "cannot store entry %s", entry.Url)
	}
	if created {
		res.Created++
		logger.WithFields(logrus.Fields{"announcement_id": announcement.Id}).Info("new announcement")
	} else {
		res.Skipped++
	}
	return res, nil
}

// markPolled stamps last_polled on a feed payload table.
func (c *Collector) markPolled(ctx context.Context, payload interface{}, sourceId string, now time.Time) error {
	err := c.DB.WithContext(ctx).Model(payload).
		Where("source_id = ?", sourceId).
		Update("last_polled", now).Error
	return errors.Wrapf(err, "cannot update last_polled of %s", sourceId)
}
