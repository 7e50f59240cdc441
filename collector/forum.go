package collector

import (
	"bytes"
	"context"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/model"
	Logger "github.com/magicjudges/announcer/utils/log"
)

func (c *Collector) collectForum(ctx context.Context, source *model.Source, forum *model.ForumSource, now time.Time, forceSync bool) (model.StageResult, error) {
	var res model.StageResult
	if !forceSync && !model.DueForPoll(forum.LastPolled, forum.PollingInterval, now) {
		return res, nil
	}

	feedURL, err := forum.FeedURL(c.JudgeAppsBaseURL)
	if err != nil {
		return res, err
	}
	body, err := c.ForumFetcher.Fetch(ctx, feedURL)
	if err != nil {
		return res, err
	}
	// The generic parser drops the author uri, so forum feeds go through the
	// atom parser directly.
	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return res, errors.Wrapf(err, "cannot parse forum feed %s", feedURL)
	}

	for _, item := range feed.Entries {
		entry, payload, err := forumEntry(item)
		if err != nil {
			Logger.Log.WithFields(logrus.Fields{"source_id": source.Id, "entry_id": item.ID}).
				WithError(err).Warn("skip malformed entry")
			res.Skipped++
			continue
		}
		partial, err := c.storeEntry(ctx, source, entry, now, func() (model.AnnouncementVariant, error) {
			return payload, nil
		})
		res.Merge(partial)
		if err != nil {
			return res, err
		}
	}

	if err := c.markPolled(ctx, &model.ForumSource{}, source.Id, now); err != nil {
		return res, err
	}
	forum.LastPolled = &now
	return res, nil
}

func forumEntry(item *atom.Entry) (feedEntry, *model.ForumAnnouncement, error) {
	entry := feedEntry{Headline: item.Title, Url: alternateLink(item.Links)}
	if entry.Url == "" {
		return entry, nil, malformed("entry %q has no link", item.ID)
	}
	published, err := publishedTime(item.PublishedParsed, item.Published)
	if err != nil {
		return entry, nil, err
	}
	entry.Published = published

	entry.Html = item.Summary
	if entry.Html == "" && item.Content != nil {
		entry.Html = item.Content.Value
	}

	payload := &model.ForumAnnouncement{PostDatetime: published}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		payload.AuthorName = item.Authors[0].Name
		payload.AuthorUrl = item.Authors[0].URI
	}
	return entry, payload, nil
}

func alternateLink(links []*atom.Link) string {
	fallback := ""
	for _, l := range links {
		if l == nil || l.Href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
		if fallback == "" {
			fallback = l.Href
		}
	}
	return fallback
}
