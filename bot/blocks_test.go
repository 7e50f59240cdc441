package bot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicjudges/announcer/model"
)

var (
	renderCreatedAt = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	renderNow       = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
)

// blockTexts flattens the mrkdwn texts of every block, context elements
// included.
func blockTexts(t *testing.T, blocks []slack.Block) []string {
	var texts []string
	for _, b := range blocks {
		switch block := b.(type) {
		case *slack.SectionBlock:
			texts = append(texts, block.Text.Text)
		case *slack.ContextBlock:
			for _, e := range block.ContextElements.Elements {
				text, ok := e.(*slack.TextBlockObject)
				require.True(t, ok)
				texts = append(texts, text.Text)
			}
		default:
			t.Fatalf("unexpected block %T", b)
		}
	}
	return texts
}

func manualAnnouncement(headline, text, url string) *model.Announcement {
	return &model.Announcement{
		Id:        "a1",
		CreatedAt: renderCreatedAt,
		Kind:      model.SourceKindManual,
		Source:    &model.Source{Id: "s1", Name: "Ops", Kind: model.SourceKindManual},
		Headline:  headline,
		Text:      text,
		Url:       url,
		Manual: &model.ManualAnnouncement{
			UserID: "u1",
			User:   &model.User{Id: "u1", FirstName: "Jane", LastName: "Doe"},
		},
	}
}

func TestRenderManual(t *testing.T) {
	blocks, err := RenderAnnouncement(manualAnnouncement("Server maintenance", "Down at noon", "https://status.example.org"), "Pull requests welcome!", renderNow)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"*Ops: Server maintenance*",
		"Down at noon",
		"https://status.example.org",
		"Submitted on 2023-06-01 10:00:00 (UTC) by Jane Doe",
		"Pull requests welcome!",
	}, blockTexts(t, blocks))

	blocks, err = RenderAnnouncement(manualAnnouncement("", "Just text", ""), "", renderNow)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"*Ops*: Just text",
		"Submitted on 2023-06-01 10:00:00 (UTC) by Jane Doe",
	}, blockTexts(t, blocks))
}

func TestRenderForum(t *testing.T) {
	a := &model.Announcement{
		Id:       "a2",
		Kind:     model.SourceKindForum,
		Source:   &model.Source{Name: "Forum", Kind: model.SourceKindForum, Forum: &model.ForumSource{FeedType: model.ForumFeedTopics}},
		Headline: "Policy update",
		Text:     "Hello *judges*\nsecond line",
		Url:      "https://apps.example.org/forum/topic/1/",
		Forum: &model.ForumAnnouncement{
			AuthorName:   "Ada",
			AuthorUrl:    "https://apps.example.org/judges/1/",
			PostDatetime: renderCreatedAt,
		},
	}
	blocks, err := RenderAnnouncement(a, "footer", renderNow)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"*Forum - New Thread: Policy update*",
		"Posted by: <https://apps.example.org/judges/1/|Ada>",
		">Hello *judges*\n>second line",
		"https://apps.example.org/forum/topic/1/",
		"Posted to the JudgeApps forum on 2023-06-01 10:00:00 (UTC)",
		"footer",
	}, blockTexts(t, blocks))

	a.Source.Forum.FeedType = model.ForumFeedPosts
	blocks, err = RenderAnnouncement(a, "footer", renderNow)
	require.Nil(t, err)
	assert.Equal(t, "*Forum - New Post in Policy update*", blockTexts(t, blocks)[0])
}

func TestRenderBlog(t *testing.T) {
	a := &model.Announcement{
		Id:       "a3",
		Kind:     model.SourceKindBlog,
		Source:   &model.Source{Name: "Blogs", Kind: model.SourceKindBlog},
		Headline: "Conference report",
		Text:     "Full _report_",
		Url:      "https://blogs.example.org/report/",
		Blog:     &model.BlogAnnouncement{LanguageTag: "en-US", AuthorName: "Grace", PostDatetime: renderCreatedAt},
	}
	blocks, err := RenderAnnouncement(a, "", renderNow)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"*Blogs - New Blog Post in Conference report*",
		"Posted by: Grace",
		">Full _report_",
		"https://blogs.example.org/report/",
		"Posted to the MagicJudges Blogs on 2023-06-01 10:00:00 (UTC)",
	}, blockTexts(t, blocks))
}

func TestRenderExemplar(t *testing.T) {
	a := &model.Announcement{
		Id:       "a4",
		Kind:     model.SourceKindExemplar,
		Source:   &model.Source{Name: "Exemplar", Kind: model.SourceKindExemplar},
		Headline: "Wave 12",
		Exemplar: &model.ExemplarAnnouncement{
			DaysOut:      3,
			WaveID:       12,
			WaveName:     "Wave 12",
			WaveDeadline: time.Date(2023, 6, 4, 12, 0, 0, 0, time.UTC),
		},
	}
	blocks, err := RenderAnnouncement(a, "footer", renderNow)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"*Exemplar - Wave 12*",
		"Closing 3 days from now",
		"The Exemplar Program window Wave 12 will be closing on " +
			"<https://www.timeanddate.com/worldclock/converter.html?iso=20230604T120000&p1=234&p2=179&p3=136&p4=195&p5=248&p6=240|Sunday, June 4 at 12:00 PM UTC>. " +
			"Consider taking a moment to enter recognitions now! https://apps.magicjudges.org/recognitions/",
		"Automatically sent by the Judge Announcements app",
		"footer",
	}, blockTexts(t, blocks))
}

func TestRenderErrors(t *testing.T) {
	a := manualAnnouncement("x", "", "")
	a.Source = nil
	_, err := RenderAnnouncement(a, "", renderNow)
	assert.NotNil(t, err)

	a = manualAnnouncement("x", "", "")
	a.Manual = nil
	_, err = RenderAnnouncement(a, "", renderNow)
	assert.NotNil(t, err)
}

func TestRenderDeterministic(t *testing.T) {
	a := manualAnnouncement("Server maintenance", "Down at noon", "")
	first, err := RenderAnnouncement(a, "fixed footer", renderNow)
	require.Nil(t, err)
	second, err := RenderAnnouncement(a, "fixed footer", renderNow)
	require.Nil(t, err)

	firstJson, err := json.Marshal(slack.Blocks{BlockSet: first})
	require.Nil(t, err)
	secondJson, err := json.Marshal(slack.Blocks{BlockSet: second})
	require.Nil(t, err)
	assert.Equal(t, string(firstJson), string(secondJson))
}

func TestTruncateWords(t *testing.T) {
	words := strings.Fields(strings.Repeat("word ", 30))
	text := strings.Join(words, " ")

	truncated, cut := TruncateWords(text, 25)
	assert.True(t, cut)
	assert.Equal(t, strings.Join(words[:25], " ")+"…", truncated)

	truncated, cut = TruncateWords("one two", 25)
	assert.False(t, cut)
	assert.Equal(t, "one two", truncated)

	// Links are not counted and never split.
	truncated, cut = TruncateWords("see <https://example.org|the docs> now please", 2)
	assert.True(t, cut)
	assert.Equal(t, "see <https://example.org|the docs> now…", truncated)
}

func TestQuoteTruncated(t *testing.T) {
	assert.Equal(t, ">line one\n>line two", QuoteTruncated("line one\nline two"))
	assert.Equal(t, ">", QuoteTruncated(""))
}

func TestTimeZoneConverterUrl(t *testing.T) {
	deadline := time.Date(2023, 6, 4, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	assert.Equal(t,
		"https://www.timeanddate.com/worldclock/converter.html?iso=20230604T120000&p1=234&p2=179&p3=136&p4=195&p5=248&p6=240",
		TimeZoneConverterUrl(deadline))
}
