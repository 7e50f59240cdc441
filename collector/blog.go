package collector

import (
	"bytes"
	"context"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/model"
	Logger "github.com/magicjudges/announcer/utils/log"
)

func (c *Collector) collectBlog(ctx context.Context, source *model.Source, blog *model.BlogSource, now time.Time, forceSync bool) (model.StageResult, error) {
	var res model.StageResult
	if !forceSync && !model.DueForPoll(blog.LastPolled, blog.PollingInterval, now) {
		return res, nil
	}

	body, err := c.WebFetcher.Fetch(ctx, blog.FeedURL)
	if err != nil {
		return res, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return res, errors.Wrapf(err, "cannot parse blog feed %s", blog.FeedURL)
	}

	for _, item := range feed.Items {
		entry, err := blogEntry(item)
		if err != nil {
			Logger.Log.WithFields(logrus.Fields{"source_id": source.Id, "guid": item.GUID}).
				WithError(err).Warn("skip malformed entry")
			res.Skipped++
			continue
		}
		partial, err := c.storeEntry(ctx, source, entry, now, func() (model.AnnouncementVariant, error) {
			lang, err := c.blogLanguage(ctx, entry.Url)
			if err != nil {
				return nil, err
			}
			return &model.BlogAnnouncement{
				LanguageTag:  lang,
				AuthorName:   blogAuthor(item),
				PostDatetime: entry.Published,
			}, nil
		})
		res.Merge(partial)
		if err != nil {
			return res, err
		}
	}

	if err := c.markPolled(ctx, &model.BlogSource{}, source.Id, now); err != nil {
		return res, err
	}
	blog.LastPolled = &now
	return res, nil
}

func blogEntry(item *gofeed.Item) (feedEntry, error) {
	entry := feedEntry{Headline: item.Title, Url: item.Link}
	if entry.Url == "" {
		return entry, malformed("entry %q has no link", item.GUID)
	}
	published, err := publishedTime(item.PublishedParsed, item.Published)
	if err != nil {
		return entry, err
	}
	entry.Published = published
	entry.Html = item.Content
	if entry.Html == "" {
		entry.Html = item.Description
	}
	return entry, nil
}

func blogAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

// blogLanguage reads the language of a post from its page. A page that cannot
// be read or declares no language makes the entry malformed, it is retried at
// the next poll.
func (c *Collector) blogLanguage(ctx context.Context, url string) (string, error) {
	page, err := c.WebFetcher.Fetch(ctx, url)
	if err != nil {
		return "", malformed("cannot read post page: %v", err)
	}
	lang, err := PageLanguage(page)
	if err != nil {
		return "", malformed("cannot parse post page: %v", err)
	}
	if lang == "" {
		return "", malformed("post page %s declares no language", url)
	}
	return lang, nil
}
