package publisher

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
	Logger "github.com/magicjudges/announcer/utils/log"
)

const (
	RouterStageName = "route_announcements"

	defaultRouteBatchSize = 200
)

// Router turns announcements into messages, one per subscribed destination.
// A destination only receives announcements created at or after its routing.
type Router struct {
	DB        *gorm.DB
	BatchSize int
	Now       utils.Clock
}

func NewRouter(db *gorm.DB) *Router {
	return &Router{DB: db, BatchSize: defaultRouteBatchSize, Now: utils.UTCNow}
}

func (r *Router) Name() string {
	return RouterStageName
}

type routeCandidate struct {
	AnnouncementID  string
	SourceRoutingID string
	DestinationID   string
}

func (r *Router) candidates(ctx context.Context) ([]routeCandidate, error) {
	var res []routeCandidate
	err := r.DB.WithContext(ctx).
		Table("announcements AS a").
		Select("a.id AS announcement_id, r.id AS source_routing_id, r.destination_id AS destination_id").
		Joins("JOIN source_routings AS r ON r.source_id = a.source_id").
		Joins("JOIN destinations AS d ON d.id = r.destination_id AND d.deleted_at IS NULL").
		Where("r.created_at <= a.created_at").
		Where("NOT EXISTS (SELECT 1 FROM messages AS m WHERE m.announcement_id = a.id AND m.source_routing_id = r.id)").
		Order("a.created_at, a.id").
		Scan(&res).Error
	return res, err
}

// Run creates the missing messages. force has no effect, routing is cheap
// enough to always scan everything.
func (r *Router) Run(ctx context.Context, force bool) (model.StageResult, error) {
	result := model.StageResult{Stage: RouterStageName}

	candidates, err := r.candidates(ctx)
	if err != nil {
		return result, err
	}
	result.Processed = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	now := r.Now()
	messages := make([]*model.Message, 0, len(candidates))
	for _, c := range candidates {
		routingId := c.SourceRoutingID
		messages = append(messages, &model.Message{
			Id:              uuid.New().String(),
			CreatedAt:       now,
			UpdatedAt:       now,
			AnnouncementID:  c.AnnouncementID,
			SourceRoutingID: &routingId,
			DestinationID:   c.DestinationID,
		})
	}

	batch := r.BatchSize
	if batch <= 0 {
		batch = defaultRouteBatchSize
	}
	// Another route pass may have inserted the same pairs meanwhile, the
	// unique index turns those into no-ops.
	res := r.DB.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(messages, batch)
	if res.Error != nil {
		return result, res.Error
	}
	result.Created = int(res.RowsAffected)
	result.Skipped = result.Processed - result.Created

	Logger.Log.WithFields(logrus.Fields{
		"candidates": result.Processed,
		"created":    result.Created,
	}).Info("routed announcements")
	return result, nil
}
