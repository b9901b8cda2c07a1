package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

const (
	DefaultBaseURL      = "https://content.dropboxapi.com/2/files/upload"
	DefaultArgHeader    = "Dropbox-API-Arg"
	DefaultPathTemplate = "/{queue}-{key}.json"
)

// Options configures an Uploader. Zero fields take the defaults above.
type Options struct {
	BaseURL      string
	ArgHeader    string
	PathTemplate string
	Timeout      time.Duration
	Client       *http.Client
	Logger       logpkg.Logger
}

// Uploader writes each entry's payload as a pretty-printed JSON file through a
// content-upload endpoint, overwriting any existing file at the target path.
type Uploader struct {
	opts   Options
	client *http.Client
	logger logpkg.Logger
}

var _ processor.Processor = (*Uploader)(nil)

func New(opts Options) *Uploader {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ArgHeader == "" {
		opts.ArgHeader = DefaultArgHeader
	}
	if opts.PathTemplate == "" {
		opts.PathTemplate = DefaultPathTemplate
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Uploader{opts: opts, client: client, logger: logger.WithComponent("remote")}
}

// Path renders the destination path for an entry.
func (u *Uploader) Path(e queue.Entry) string {
	return strings.NewReplacer("{queue}", e.QueueName, "{key}", e.ResourceKey).Replace(u.opts.PathTemplate)
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
}

// Process uploads e.Payload. Without a token it fails without a request.
// A non-2xx response is a failure with a nil error.
func (u *Uploader) Process(ctx context.Context, e queue.Entry, pc processor.Context) (bool, error) {
	if pc.Token == "" {
		u.logger.Warn("no token for upload", logpkg.Queue(e.QueueName), logpkg.Resource(e.ResourceKey))
		return false, nil
	}

	body, err := prettyPayload(e.Payload)
	if err != nil {
		return false, fmt.Errorf("remote: payload for %s: %w", e.ID, err)
	}
	arg, err := json.Marshal(uploadArg{Path: u.Path(e), Mode: "overwrite"})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pc.Token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(u.opts.ArgHeader, asciiJSON(arg))

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("remote: upload %s: %w", e.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	fields := []logpkg.Field{
		logpkg.Queue(e.QueueName),
		logpkg.Resource(e.ResourceKey),
		logpkg.Int("status", resp.StatusCode),
		logpkg.Dur("elapsed", time.Since(start)),
	}
	if ok {
		u.logger.Debug("uploaded", fields...)
	} else {
		u.logger.Warn("upload rejected", fields...)
	}
	return ok, nil
}

func prettyPayload(p json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(p)) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, p, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// asciiJSON escapes non-ASCII runes so the value is a valid HTTP header.
func asciiJSON(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r < utf8.RuneSelf:
			sb.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&sb, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&sb, `\u%04x`, r)
		}
	}
	return sb.String()
}
