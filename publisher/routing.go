package publisher

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/magicjudges/announcer/model"
)

var (
	ErrUnknownSource      = errors.New("unknown source")
	ErrUnknownDestination = errors.New("unknown destination")
)

func exists(db *gorm.DB, m interface{}, id string) (bool, error) {
	var count int64
	err := db.Model(m).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Subscribe routes future announcements of a source to a destination. It is
// idempotent: subscribing twice returns the existing routing with created
// false, and its original creation time is kept.
func Subscribe(db *gorm.DB, destinationId string, sourceId string) (routing *model.SourceRouting, created bool, err error) {
	if ok, err := exists(db, &model.Destination{}, destinationId); err != nil || !ok {
		return nil, false, errors.Wrapf(firstErr(err, ErrUnknownDestination), "destination %s", destinationId)
	}
	if ok, err := exists(db, &model.Source{}, sourceId); err != nil || !ok {
		return nil, false, errors.Wrapf(firstErr(err, ErrUnknownSource), "source %s", sourceId)
	}

	routing = &model.SourceRouting{
		Id:            uuid.New().String(),
		SourceID:      sourceId,
		DestinationID: destinationId,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(routing)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return routing, true, nil
	}

	var existing model.SourceRouting
	err = db.Where("source_id = ? AND destination_id = ?", sourceId, destinationId).First(&existing).Error
	return &existing, false, err
}

// Unsubscribe deletes the routing between a source and a destination.
// Messages already routed keep their destination and are still delivered.
func Unsubscribe(db *gorm.DB, destinationId string, sourceId string) (deleted bool, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		var routing model.SourceRouting
		err := tx.Where("source_id = ? AND destination_id = ?", sourceId, destinationId).First(&routing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Same effect as the ON DELETE SET NULL constraint, kept explicit for
		// databases where foreign keys are not enforced.
		if err := tx.Model(&model.Message{}).
			Where("source_routing_id = ?", routing.Id).
			Update("source_routing_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&routing)
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}

// MaybeAddDefaultSources subscribes a destination without any routing to
// every default source. It returns the number of routings created.
func MaybeAddDefaultSources(db *gorm.DB, dest *model.Destination) (int, error) {
	var count int64
	if err := db.Model(&model.SourceRouting{}).Where("destination_id = ?", dest.Id).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	var sources []model.Source
	if err := db.Where("default_source = ?", true).Order("sort_order").Find(&sources).Error; err != nil {
		return 0, err
	}
	added := 0
	for _, s := range sources {
		_, created, err := Subscribe(db, dest.Id, s.Id)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}

// Routings lists the subscriptions of a destination, oldest first.
func Routings(db *gorm.DB, destinationId string) ([]*model.SourceRouting, error) {
	var routings []*model.SourceRouting
	err := db.Preload("Source").Where("destination_id = ?", destinationId).Order("created_at").Find(&routings).Error
	return routings, err
}

func firstErr(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
