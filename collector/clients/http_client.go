package clients

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"

	Logger "github.com/magicjudges/announcer/utils/log"
)

// maxBodyBytes bounds how much of a feed or page is read into memory.
const maxBodyBytes = 10 << 20

type HttpClient struct {
	header http.Header

	client *http.Client
}

func NewDefaultHttpClient() *HttpClient {
	return NewHttpClient(http.Header{}, 30*time.Second)
}

func NewHttpClient(header http.Header, timeout time.Duration) *HttpClient {
	return &HttpClient{header: header, client: &http.Client{Timeout: timeout}}
}

// NewHttpClientWithUserAgent is what feed collectors use, feeds behind some
// CDNs reject the default Go user agent.
func NewHttpClientWithUserAgent(userAgent string, timeout time.Duration) *HttpClient {
	header := http.Header{}
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}
	return NewHttpClient(header, timeout)
}

func (c *HttpClient) Get(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "bad url %s", uri)
	}
	req.Header = c.header.Clone()
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if IsNon200HttpResponse(res) {
		MaybeLogNon200HttpError(res)
		res.Body.Close()
		return nil, errors.Errorf("GET %s returned http status %d", uri, res.StatusCode)
	}

	return res, nil
}

// Fetch returns the body of a successful GET.
func (c *HttpClient) Fetch(ctx context.Context, uri string) ([]byte, error) {
	res, err := c.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := ioutil.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read body of %s", uri)
	}
	return body, nil
}

// Log http response if the error code is not 2XX
func MaybeLogNon200HttpError(res *http.Response) {
	if IsNon200HttpResponse(res) {
		Logger.Log.Errorf("non-200 http code: %d", res.StatusCode)
		LogHttpResponseBody(res)
	}
}

func IsNon200HttpResponse(res *http.Response) bool {
	return res.StatusCode >= 300
}

func LogHttpResponseBody(res *http.Response) {
	body, err := ioutil.ReadAll(io.LimitReader(res.Body, 4096))
	if err == nil {
		Logger.Log.Errorln("response body is: ", string(body))
	}
}
