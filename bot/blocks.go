package bot

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"github.com/magicjudges/announcer/model"
)

const (
	truncateWordCount = 25
	ellipsis          = "…"

	timestampLayout = "2006-01-02 15:04:05"
	deadlineLayout  = "Monday, January 2 at 15:04 PM"
	converterLayout = "20060102T150405"

	exemplarRecognitionsUrl = "https://apps.magicjudges.org/recognitions/"
	timeZoneConverterUrl    = "https://www.timeanddate.com/worldclock/converter.html?iso=%s&p1=234&p2=179&p3=136&p4=195&p5=248&p6=240"
)

// A Slack link or any other <...> token is kept whole and not counted, the
// first group captures a word.
var wordOrTag = regexp.MustCompile(`<[^>]+?>|([^<>\s]+)`)

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func section(text string) slack.Block {
	return slack.NewSectionBlock(mrkdwn(text), nil, nil)
}

func contextBlock(text string, footer string) slack.Block {
	elements := []slack.MixedElement{mrkdwn(text)}
	// Slack rejects empty text objects, so an empty pool drops the element.
	if footer != "" {
		elements = append(elements, mrkdwn(footer))
	}
	return slack.NewContextBlock("", elements...)
}

// TruncateWords keeps the first n words of text and reports whether anything
// was cut.
func TruncateWords(text string, n int) (string, bool) {
	words, end := 0, 0
	for _, m := range wordOrTag.FindAllStringSubmatchIndex(text, -1) {
		if m[2] < 0 {
			continue
		}
		words++
		if words > n {
			return text[:end] + ellipsis, true
		}
		end = m[3]
	}
	return text, false
}

// QuoteTruncated renders the preview of a feed entry as a Slack quote.
func QuoteTruncated(text string) string {
	truncated, _ := TruncateWords(text, truncateWordCount)
	return ">" + strings.ReplaceAll(truncated, "\n", "\n>")
}

// TimeZoneConverterUrl links a deadline to a page showing it in several time
// zones.
func TimeZoneConverterUrl(deadline time.Time) string {
	return fmt.Sprintf(timeZoneConverterUrl, deadline.UTC().Format(converterLayout))
}

// RenderAnnouncement builds the Slack blocks of an announcement. It only
// reads its arguments, the footer and now are injected so the output is
// deterministic.
func RenderAnnouncement(a *model.Announcement, footer string, now time.Time) ([]slack.Block, error) {
	if a.Source == nil {
		return nil, errors.Wrapf(model.ErrMissingVariant, "announcement %s has no source loaded", a.Id)
	}
	variant, err := a.Variant()
	if err != nil {
		return nil, err
	}
	switch v := variant.(type) {
	case *model.ManualAnnouncement:
		return renderManual(a, v, footer), nil
	case *model.ForumAnnouncement:
		return renderForum(a, v, footer), nil
	case *model.BlogAnnouncement:
		return renderBlog(a, v, footer), nil
	case *model.ExemplarAnnouncement:
		return renderExemplar(a, v, footer, now), nil
	}
	return nil, errors.Wrapf(model.ErrUnknownSourceKind, "announcement %s", a.Id)
}

func renderManual(a *model.Announcement, m *model.ManualAnnouncement, footer string) []slack.Block {
	var blocks []slack.Block
	if a.Headline != "" {
		blocks = append(blocks, section(fmt.Sprintf("*%s: %s*", a.Source.Name, a.Headline)))
		if a.Text != "" {
			blocks = append(blocks, section(a.Text))
		}
	} else if a.Text != "" {
		blocks = append(blocks, section(fmt.Sprintf("*%s*: %s", a.Source.Name, a.Text)))
	}
	if a.Url != "" {
		blocks = append(blocks, section(a.Url))
	}

	submitter := ""
	if m.User != nil {
		submitter = m.User.FullName()
	}
	return append(blocks, contextBlock(
		fmt.Sprintf("Submitted on %s (UTC) by %s", a.CreatedAt.UTC().Format(timestampLayout), submitter),
		footer,
	))
}

func renderForum(a *model.Announcement, f *model.ForumAnnouncement, footer string) []slack.Block {
	title := fmt.Sprintf("*%s - New Post in %s*", a.Source.Name, a.Headline)
	if a.Source.Forum != nil && a.Source.Forum.FeedType == model.ForumFeedTopics {
		title = fmt.Sprintf("*%s - New Thread: %s*", a.Source.Name, a.Headline)
	}
	return []slack.Block{
		section(title),
		section(fmt.Sprintf("Posted by: <%s|%s>", f.AuthorUrl, f.AuthorName)),
		section(QuoteTruncated(a.Text)),
		section(a.Url),
		contextBlock(
			fmt.Sprintf("Posted to the JudgeApps forum on %s (UTC)", f.PostDatetime.UTC().Format(timestampLayout)),
			footer,
		),
	}
}

func renderBlog(a *model.Announcement, b *model.BlogAnnouncement, footer string) []slack.Block {
	return []slack.Block{
		section(fmt.Sprintf("*%s - New Blog Post in %s*", a.Source.Name, a.Headline)),
		section(fmt.Sprintf("Posted by: %s", b.AuthorName)),
		section(QuoteTruncated(a.Text)),
		section(a.Url),
		contextBlock(
			fmt.Sprintf("Posted to the MagicJudges Blogs on %s (UTC)", b.PostDatetime.UTC().Format(timestampLayout)),
			footer,
		),
	}
}

func renderExemplar(a *model.Announcement, e *model.ExemplarAnnouncement, footer string, now time.Time) []slack.Block {
	deadline := e.WaveDeadline.UTC()
	return []slack.Block{
		section(fmt.Sprintf("*%s - %s*", a.Source.Name, e.WaveName)),
		section("Closing " + humanize.RelTime(deadline, now, "ago", "from now")),
		section(fmt.Sprintf(
			"The Exemplar Program window %s will be closing on <%s|%s UTC>. Consider taking a moment to enter recognitions now! %s",
			e.WaveName,
			TimeZoneConverterUrl(deadline),
			deadline.Format(deadlineLayout),
			exemplarRecognitionsUrl,
		)),
		contextBlock("Automatically sent by the Judge Announcements app", footer),
	}
}
