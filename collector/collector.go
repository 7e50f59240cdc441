/*
collector Package implements the fetch stage: every source is asked for new
announcements, which are stored immediately. Manual sources never produce
anything here, their announcements are submitted through the operator server.
*/
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/collector/clients"
	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

const (
	StageName = "fetch_announcements"

	defaultConcurrency = 4
)

// Fetcher returns the raw body behind a url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Collector struct {
	DB *gorm.DB

	// ForumFetcher reads feeds behind the JudgeApps login.
	ForumFetcher Fetcher
	// WebFetcher reads public feeds and pages.
	WebFetcher Fetcher

	JudgeAppsBaseURL string
	Concurrency      int
	Now              utils.Clock
}

func NewCollector(db *gorm.DB, opts flag.Options) *Collector {
	return &Collector{
		DB: db,
		ForumFetcher: clients.NewForumSession(
			opts.JudgeApps.BaseURL,
			opts.JudgeApps.Username,
			opts.JudgeApps.Password,
			opts.Pipeline.UserAgent,
			opts.Pipeline.HTTPTimeout,
		),
		WebFetcher:       clients.NewHttpClientWithUserAgent(opts.Pipeline.UserAgent, opts.Pipeline.HTTPTimeout),
		JudgeAppsBaseURL: opts.JudgeApps.BaseURL,
		Concurrency:      opts.Pipeline.FetchConcurrency,
		Now:              utils.UTCNow,
	}
}

func (c *Collector) Name() string {
	return StageName
}

func (c *Collector) now() time.Time {
	if c.Now == nil {
		return utils.UTCNow()
	}
	return c.Now()
}

// Run polls every source once. A failing source is logged and counted, it
// never stops the others. force skips the polling interval check.
func (c *Collector) Run(ctx context.Context, force bool) (model.StageResult, error) {
	result := model.StageResult{Stage: StageName}
	sources, err := model.ListSources(c.DB.WithContext(ctx))
	if err != nil {
		return result, errors.Wrap(err, "cannot list sources")
	}
	now := c.now()

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)
	for _, source := range sources {
		source := source
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			partial, err := c.collect(ctx, source, now, force)
			mu.Lock()
			defer mu.Unlock()
			result.Merge(partial)
			if err != nil {
				Logger.Log.WithFields(logrus.Fields{
					"source_id": source.Id,
					"source":    source.Name,
				}).WithError(err).Error("fail to get new announcements")
				result.AddError(errors.Wrapf(err, "source %s", source.Name))
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// GetNewAnnouncements asks one source for new announcements and stores them.
// It returns how many were created.
func (c *Collector) GetNewAnnouncements(ctx context.Context, source *model.Source, now time.Time, forceSync bool) (int, error) {
	partial, err := c.collect(ctx, source, now, forceSync)
	return partial.Created, err
}

func (c *Collector) collect(ctx context.Context, source *model.Source, now time.Time, forceSync bool) (model.StageResult, error) {
	variant, err := source.Variant()
	if err != nil {
		return model.StageResult{}, err
	}
	switch v := variant.(type) {
	case *model.ManualSource:
		return model.StageResult{}, nil
	case *model.ForumSource:
		return c.collectForum(ctx, source, v, now, forceSync)
	case *model.BlogSource:
		return c.collectBlog(ctx, source, v, now, forceSync)
	case *model.ExemplarSource:
		return c.collectExemplar(ctx, source, v, now)
	}
	return model.StageResult{}, errors.Wrapf(model.ErrUnknownSourceKind, "source %s", source.Id)
}
