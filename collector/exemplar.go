package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	Logger "github.com/magicjudges/announcer/utils/log"
)

var errReminderTaken = errors.New("reminder already sent by another pass")

// collectExemplar emits at most one reminder per pass. Moving last_reminder
// is a compare-and-set in the same transaction as the insert, so two passes
// racing on the same source cannot both emit it.
func (c *Collector) collectExemplar(ctx context.Context, source *model.Source, exemplar *model.ExemplarSource, now time.Time) (model.StageResult, error) {
	var res model.StageResult
	days, due, err := exemplar.DueReminder(now)
	if err != nil || !due {
		return res, err
	}
	res.Processed++

	announcement, err := model.NewAnnouncement(source, &model.ExemplarAnnouncement{
		DaysOut:      days,
		WaveID:       exemplar.WaveID,
		WaveName:     exemplar.WaveName,
		WaveDeadline: exemplar.WaveDeadline,
	}, now)
	if err != nil {
		return res, err
	}
	announcement.Headline = exemplar.WaveName

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&model.ExemplarSource{}).
			Where("source_id = ? AND last_reminder = ?", source.Id, exemplar.LastReminder).
			Update("last_reminder", days)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return errReminderTaken
		}
		_, err := model.InsertAnnouncement(tx, announcement)
		return err
	})
	if errors.Is(err, errReminderTaken) {
		res.Skipped++
		return res, nil
	}
	if err != nil {
		return res, errors.Wrapf(err, "cannot store reminder for %s", source.Id)
	}

	exemplar.LastReminder = days
	res.Created++
	Logger.Log.WithFields(logrus.Fields{
		"source_id":       source.Id,
		"announcement_id": announcement.Id,
		"days_out":        days,
	}).Info("exemplar reminder created")
	return res, nil
}
