package modules

import (
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/bot"
	"github.com/magicjudges/announcer/collector"
	"github.com/magicjudges/announcer/panoptic"
	"github.com/magicjudges/announcer/publisher"
	"github.com/magicjudges/announcer/utils/flag"
)

// NewPipeline builds the fetch, route and deliver stages in execution order.
func NewPipeline(db *gorm.DB, opts flag.Options) []panoptic.Stage {
	footers := bot.NewFooterPool(db, opts.Pipeline.FooterTTL)
	registry := &publisher.DestinationRegistry{
		Slack: bot.NewSlackWebhook(footers, opts.Pipeline.HTTPTimeout),
	}
	return []panoptic.Stage{
		collector.NewCollector(db, opts),
		publisher.NewRouter(db),
		publisher.NewDeliverer(db, registry, opts.Pipeline.DeliveryConcurrency, opts.Pipeline.DeliveryRate),
	}
}

// NewStageJobs puts every stage on the same schedule.
func NewStageJobs(stages []panoptic.Stage, spec string) ([]*StageJob, error) {
	jobs := make([]*StageJob, 0, len(stages))
	for _, stage := range stages {
		job, err := NewStageJob(stage, spec)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
