package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
	Logger "github.com/magicjudges/announcer/utils/log"
)

const (
	DelivererStageName = "deliver_messages"

	defaultDeliveryBatchSize   = 500
	defaultDeliveryConcurrency = 4
	maxLastErrorLength         = 1000
)

// Deliverer sends unsent messages. Every message is attempted at most once per
// pass, a failed one stays eligible for the next pass.
type Deliverer struct {
	DB          *gorm.DB
	Sender      Sender
	Concurrency int
	BatchSize   int
	// Rate is messages per second per destination, unlimited when not
	// positive.
	Rate float64
	Now  utils.Clock

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDeliverer(db *gorm.DB, sender Sender, concurrency int, perSecond float64) *Deliverer {
	return &Deliverer{
		DB:          db,
		Sender:      sender,
		Concurrency: concurrency,
		BatchSize:   defaultDeliveryBatchSize,
		Rate:        perSecond,
		Now:         utils.UTCNow,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (d *Deliverer) Name() string {
	return DelivererStageName
}

// limiter is kept across passes so a destination's budget does not reset at
// every pass.
func (d *Deliverer) limiter(destinationId string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiters == nil {
		d.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := d.limiters[destinationId]
	if !ok {
		limit := rate.Inf
		if d.Rate > 0 {
			limit = rate.Limit(d.Rate)
		}
		l = rate.NewLimiter(limit, 1)
		d.limiters[destinationId] = l
	}
	return l
}

// pruneLimiters drops the limiters of destinations that had nothing pending
// in the last pass.
func (d *Deliverer) pruneLimiters(active map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.limiters {
		if !active[id] {
			delete(d.limiters, id)
		}
	}
}

// pendingCursor is the (created_at, id) key of the last message read in a
// pass.
type pendingCursor struct {
	CreatedAt time.Time
	Id        string
}

// pending reads the next page of unsent messages after cursor, oldest first.
func (d *Deliverer) pending(ctx context.Context, cursor *pendingCursor, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	query := d.DB.WithContext(ctx).
		Preload("Destination").
		Preload("Destination.Slack")
	query = model.PreloadAnnouncementForRender(query, "Announcement.").
		Where("sent = ?", false)
	if cursor != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.Id)
	}
	err := query.
		Order("created_at, id").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// UnsentCount is shown on the status view.
func UnsentCount(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&model.Message{}).Where("sent = ?", false).Count(&count).Error
	return count, err
}

// Run reads the whole unsent queue page by page, so messages that never clear
// (vetoed, failing, deleted destination) cannot hide newer ones.
func (d *Deliverer) Run(ctx context.Context, force bool) (model.StageResult, error) {
	result := model.StageResult{Stage: DelivererStageName}

	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultDeliveryBatchSize
	}
	seen := make(map[string]bool)
	var cursor *pendingCursor
	for ctx.Err() == nil {
		messages, err := d.pending(ctx, cursor, batch)
		if err != nil {
			return result, err
		}
		if len(messages) == 0 {
			break
		}
		for _, m := range messages {
			seen[m.DestinationID] = true
		}
		result.Merge(d.deliverPage(ctx, messages))

		last := messages[len(messages)-1]
		cursor = &pendingCursor{CreatedAt: last.CreatedAt, Id: last.Id}
		if len(messages) < batch {
			break
		}
	}
	d.pruneLimiters(seen)

	if result.Processed > 0 {
		Logger.Log.WithFields(logrus.Fields{
			"processed": result.Processed,
			"sent":      result.Created,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
		}).Info("delivered messages")
	}
	return result, ctx.Err()
}

// deliverPage groups one page by destination and serves the destinations in
// parallel.
func (d *Deliverer) deliverPage(ctx context.Context, messages []*model.Message) model.StageResult {
	var result model.StageResult
	var order []string
	groups := make(map[string][]*model.Message)
	for _, m := range messages {
		if _, ok := groups[m.DestinationID]; !ok {
			order = append(order, m.DestinationID)
		}
		groups[m.DestinationID] = append(groups[m.DestinationID], m)
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDeliveryConcurrency
	}
	var mu sync.Mutex
	eg := errgroup.Group{}
	eg.SetLimit(concurrency)
	for _, destinationId := range order {
		group := groups[destinationId]
		limiter := d.limiter(destinationId)
		eg.Go(func() error {
			partial := d.deliverDestination(ctx, group, limiter)
			mu.Lock()
			result.Merge(partial)
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()
	return result
}

// deliverDestination sends the messages of one destination in order.
func (d *Deliverer) deliverDestination(ctx context.Context, messages []*model.Message, limiter *rate.Limiter) model.StageResult {
	var result model.StageResult
	for _, m := range messages {
		if ctx.Err() != nil {
			return result
		}
		result.Processed++

		if m.Destination == nil {
			// Soft-deleted destination, the message waits for a reconnect.
			result.Skipped++
			continue
		}
		if m.Announcement == nil {
			result.AddError(errors.Errorf("message %s has no announcement", m.Id))
			continue
		}
		if !m.Destination.Wants(m.Announcement) {
			Logger.Log.WithFields(logrus.Fields{
				"message":     m.Id,
				"destination": m.Destination.Name,
				"language":    m.Announcement.LanguageTag(),
			}).Debug("destination vetoed announcement")
			result.Skipped++
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			result.Processed--
			return result
		}

		err := d.Sender.Deliver(ctx, m.Destination, m.Announcement)
		if err != nil {
			Logger.Log.WithFields(logrus.Fields{
				"message":     m.Id,
				"destination": m.Destination.Name,
				"attempts":    m.Attempts + 1,
			}).Errorf("delivery failed: %s", err)
			result.AddError(errors.Wrapf(err, "message %s", m.Id))
			if err := d.recordFailure(ctx, m, err); err != nil {
				Logger.Log.Errorf("failed to record delivery failure of %s: %s", m.Id, err)
			}
			continue
		}

		marked, err := d.markSent(ctx, m)
		if err != nil {
			result.AddError(errors.Wrapf(err, "message %s delivered but not marked sent", m.Id))
			continue
		}
		if !marked {
			// Another process marked it first.
			result.Skipped++
			continue
		}
		result.Created++
	}
	return result
}

func (d *Deliverer) markSent(ctx context.Context, m *model.Message) (bool, error) {
	now := d.Now()
	res := d.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND sent = ?", m.Id, false).
		Updates(map[string]interface{}{"sent": true, "sent_at": now, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

func (d *Deliverer) recordFailure(ctx context.Context, m *model.Message, cause error) error {
	msg := cause.Error()
	if len(msg) > maxLastErrorLength {
		msg = msg[:maxLastErrorLength]
	}
	return d.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND sent = ?", m.Id, false).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": msg,
			"updated_at": d.Now(),
		}).Error
}
