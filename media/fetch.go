package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultMaxBytes caps a single fetched input.
const DefaultMaxBytes = 512 << 20

var ErrTooLarge = errors.New("media: input exceeds size limit")

// Fetcher loads input media from http(s) URLs and data: URLs.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
}

// NewFetcher returns a Fetcher. A nil client gets a 2 minute timeout.
func NewFetcher(h *http.Client) *Fetcher {
	if h == nil {
		h = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{http: h, maxBytes: DefaultMaxBytes}
}

// Fetch returns the bytes behind src and their MIME type.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, string, error) {
	if strings.HasPrefix(src, "data:") {
		return DecodeDataURL(src)
	}
	body, mimeType, err := f.open(ctx, src)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()
	b, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("media: read %s: %w", redact(src), err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(b)
	}
	return b, mimeType, nil
}

// Save writes the bytes behind src to path.
func (f *Fetcher) Save(ctx context.Context, src, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("media: create %s: %w", path, err)
	}
	defer out.Close()

	if strings.HasPrefix(src, "data:") {
		b, _, err := DecodeDataURL(src)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	}

	body, _, err := f.open(ctx, src)
	if err != nil {
		return err
	}
	defer body.Close()
	n, err := io.Copy(out, io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return fmt.Errorf("media: download %s: %w", redact(src), err)
	}
	if n > f.maxBytes {
		return ErrTooLarge
	}
	return out.Close()
}

func (f *Fetcher) open(ctx context.Context, src string) (io.ReadCloser, string, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("media: unsupported source %q", redact(src))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media: download %s: %w", redact(src), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("media: download failed: %d", resp.StatusCode)
	}
	mimeType := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = mt
		}
	}
	return resp.Body, mimeType, nil
}

// DecodeDataURL decodes "data:[<mediatype>][;base64],<data>".
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", fmt.Errorf("media: not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("media: malformed data URL")
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	mimeType := meta
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}

	if !isBase64 {
		b, err := url.PathUnescape(data)
		if err != nil {
			return nil, "", fmt.Errorf("media: data URL: %w", err)
		}
		return []byte(b), mimeType, nil
	}
	data = strings.TrimSpace(data)
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if b, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "=")); err2 == nil {
			return b, mimeType, nil
		}
		return nil, "", fmt.Errorf("media: data URL: %w", err)
	}
	return b, mimeType, nil
}

// redact keeps data URLs and query strings out of errors and logs.
func redact(src string) string {
	if strings.HasPrefix(src, "data:") {
		return "data:..."
	}
	if i := strings.IndexByte(src, '?'); i >= 0 {
		return src[:i]
	}
	return src
}
