package bot

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
)

// Rand is the part of math/rand the footer draw needs.
type Rand interface {
	Intn(n int) int
}

// FooterSource picks the promotional line appended to every announcement.
type FooterSource interface {
	Footer(ctx context.Context) (string, error)
}

// StaticFooter always returns the same line.
type StaticFooter string

func (s StaticFooter) Footer(context.Context) (string, error) {
	return string(s), nil
}

// FooterPool draws a random live AdMessage. The live messages are cached and
// reloaded once TTL has passed.
type FooterPool struct {
	DB   *gorm.DB
	TTL  time.Duration
	Rand Rand
	Now  utils.Clock

	mu       sync.Mutex
	texts    []string
	loadedAt time.Time
	loaded   bool
}

func NewFooterPool(db *gorm.DB, ttl time.Duration) *FooterPool {
	return &FooterPool{
		DB:   db,
		TTL:  ttl,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:  utils.UTCNow,
	}
}

// Refresh reloads the live messages now.
func (p *FooterPool) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

func (p *FooterPool) refreshLocked(ctx context.Context) error {
	var texts []string
	err := p.DB.WithContext(ctx).Model(&model.AdMessage{}).
		Where("live = ?", true).
		Order("id").
		Pluck("text", &texts).Error
	if err != nil {
		return errors.Wrap(err, "cannot load footer messages")
	}
	p.texts = texts
	p.loadedAt = p.Now()
	p.loaded = true
	return nil
}

// Footer returns a random live message, or "" when there is none.
func (p *FooterPool) Footer(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || p.Now().Sub(p.loadedAt) >= p.TTL {
		if err := p.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	if len(p.texts) == 0 {
		return "", nil
	}
	return p.texts[p.Rand.Intn(len(p.texts))], nil
}
