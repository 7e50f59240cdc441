package clients

import (
	"context"
	"time"

	"github.com/gocolly/colly"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	Logger "github.com/magicjudges/announcer/utils/log"
)

const LoginPath = "/accounts/login/"

var ErrLoginFormNotFound = errors.New("login form not found")

// ForumSession reads JudgeApps forum feeds, which are only served to logged in
// users. Every Fetch logs in with a fresh cookie jar, so sessions never go
// stale between polls.
type ForumSession struct {
	BaseURL   string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

func NewForumSession(baseURL, username, password, userAgent string, timeout time.Duration) *ForumSession {
	return &ForumSession{
		BaseURL:   baseURL,
		Username:  username,
		Password:  password,
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

func (s *ForumSession) newCollector() *colly.Collector {
	options := []func(*colly.Collector){colly.AllowURLRevisit()}
	if s.UserAgent != "" {
		options = append(options, colly.UserAgent(s.UserAgent))
	}
	c := colly.NewCollector(options...)
	c.IgnoreRobotsTxt = true
	if s.Timeout > 0 {
		c.SetRequestTimeout(s.Timeout)
	}
	return c
}

// login submits the first form of the login page with its hidden fields plus
// the credentials. The returned collector carries the session cookies.
func (s *ForumSession) login(ctx context.Context) (*colly.Collector, error) {
	loginURL := s.BaseURL + LoginPath
	c := s.newCollector()

	var (
		found  bool
		action string
		fields = map[string]string{}
	)
	c.OnHTML("form", func(e *colly.HTMLElement) {
		if found {
			return
		}
		found = true
		action = e.Request.AbsoluteURL(e.Attr("action"))
		e.ForEach("input[type=hidden]", func(_ int, input *colly.HTMLElement) {
			if name := input.Attr("name"); name != "" {
				fields[name] = input.Attr("value")
			}
		})
	})
	// Django rejects a CSRF protected POST over https without a referer.
	c.OnRequest(func(r *colly.Request) {
		if r.Method == "POST" {
			r.Headers.Set("Referer", loginURL)
		}
	})

	if err := c.Visit(loginURL); err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", loginURL)
	}
	if !found {
		return nil, errors.Wrapf(ErrLoginFormNotFound, "at %s", loginURL)
	}
	if action == "" {
		action = loginURL
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields["username"] = s.Username
	fields["password"] = s.Password
	if err := c.Post(action, fields); err != nil {
		return nil, errors.Wrap(err, "forum login failed")
	}
	Logger.Log.WithFields(logrus.Fields{"base_url": s.BaseURL}).Debug("logged in to JudgeApps")
	return c, nil
}

// Fetch logs in and returns the raw body of the feed at feedURL.
func (s *ForumSession) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	loggedIn, err := s.login(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A clone shares the cookie jar but none of the login callbacks.
	c := loggedIn.Clone()
	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	if err := c.Visit(feedURL); err != nil {
		return nil, errors.Wrapf(err, "cannot fetch forum feed %s", feedURL)
	}
	if len(body) == 0 {
		return nil, errors.Errorf("empty forum feed %s", feedURL)
	}
	return body, nil
}
