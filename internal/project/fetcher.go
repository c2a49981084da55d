package project

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher opens project locations: http(s) URLs, file URLs and plain paths.
type Fetcher struct {
	client *resty.Client
}

// NewFetcher creates a fetcher whose HTTP requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/xml, application/zip, */*")
	return &Fetcher{client: client}
}

// Open returns the content at location. The caller closes the reader.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.download(ctx, location)
	case "file":
		return os.Open(u.Path)
	case "":
		return os.Open(location)
	default:
		return nil, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

func (f *Fetcher) download(ctx context.Context, location string) (io.ReadCloser, error) {
	// the body is streamed so the loader's size limit applies while reading
	httpResp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", location, err)
	}

	body := httpResp.RawBody()
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("download of %s returned HTTP %d", location, httpResp.StatusCode())
	}
	if body == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return body, nil
}
