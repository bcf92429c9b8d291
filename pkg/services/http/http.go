// Package http implements a read-only storage service over plain HTTP.
//
// Files are fetched from Endpoint + path: stat issues a HEAD request and
// read a GET, with Range and conditional headers forwarded to the server.
// Every request goes through the swappable client held by the service Info.
package http

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
)

// Config configures the http service.
type Config struct {
	// Endpoint is the base URL, e.g. "https://example.com/files".
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`

	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Username and Password enable basic authentication.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Token enables bearer authentication. It wins over basic credentials.
	Token string `mapstructure:"token"`
}

// Backend is the http service.
type Backend struct {
	endpoint string
	auth     string
	info     *store.Info
}

var _ store.Accessor = (*Backend)(nil)

// New creates a service reading from cfg.Endpoint.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, store.Errorf(store.KindConfigInvalid, "invalid endpoint %q", cfg.Endpoint).
			WithContext("service", string(store.SchemeHTTP))
	}

	b := &Backend{
		endpoint: strings.TrimSuffix(u.String(), "/"),
		info: store.NewInfo().
			SetScheme(store.SchemeHTTP).
			SetName(cfg.Name).
			SetRoot(cfg.Root).
			SetNativeCapability(store.Capability{
				Stat:                      true,
				StatWithIfMatch:           true,
				StatWithIfNoneMatch:       true,
				StatWithIfModifiedSince:   true,
				StatWithIfUnmodifiedSince: true,

				Read:                      true,
				ReadWithIfMatch:           true,
				ReadWithIfNoneMatch:       true,
				ReadWithIfModifiedSince:   true,
				ReadWithIfUnmodifiedSince: true,

				Shared: true,
			}),
	}

	switch {
	case cfg.Token != "":
		b.auth = "Bearer " + cfg.Token
	case cfg.Username != "":
		req, _ := http.NewRequest(http.MethodGet, b.endpoint, nil)
		req.SetBasicAuth(cfg.Username, cfg.Password)
		b.auth = req.Header.Get("Authorization")
	}

	logger.Debug("http: service ready (endpoint=%s)", b.endpoint)
	return b, nil
}

func (b *Backend) Info() *store.Info {
	return b.info
}

// url builds the request URL of an absolute path, escaping each segment.
func (b *Backend) url(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.endpoint + "/" + strings.Join(segments, "/")
}

func (b *Backend) newRequest(ctx context.Context, method, path string, c store.Conditions) (*http.Request, error) {
	req, err := store.NewRequest(ctx, method, b.url(path), nil)
	if err != nil {
		return nil, err
	}
	if b.auth != "" {
		req.Header.Set("Authorization", b.auth)
	}
	setConditions(req.Header, c)
	return req, nil
}

func setConditions(h http.Header, c store.Conditions) {
	if c.IfMatch != "" {
		h.Set("If-Match", c.IfMatch)
	}
	if c.IfNoneMatch != "" {
		h.Set("If-None-Match", c.IfNoneMatch)
	}
	if !c.IfModifiedSince.IsZero() {
		h.Set("If-Modified-Since", c.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if !c.IfUnmodifiedSince.IsZero() {
		h.Set("If-Unmodified-Since", c.IfUnmodifiedSince.UTC().Format(http.TimeFormat))
	}
}

// ============================================================================
// Stat / Read
// ============================================================================

// Stat issues a HEAD request. Directories cannot be probed over plain HTTP
// and are reported as existing.
func (b *Backend) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	if store.IsDirPath(path) {
		return store.NewRpStat(store.NewMetadata(store.ModeDir)), nil
	}

	req, err := b.newRequest(ctx, http.MethodHead, path, args.Conditions())
	if err != nil {
		return store.RpStat{}, err
	}
	resp, _, err := b.info.HTTPClient().Send(req)
	if err != nil {
		return store.RpStat{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return store.RpStat{}, parseError(resp, nil, path)
	}

	meta, err := parseMetadata(resp)
	if err != nil {
		return store.RpStat{}, err
	}
	return store.NewRpStat(meta), nil
}

func (b *Backend) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	req, err := b.newRequest(ctx, http.MethodGet, path, args.Conditions())
	if err != nil {
		return store.RpRead{}, nil, err
	}
	if !args.Range.IsFull() {
		req.Header.Set("Range", args.Range.HeaderValue())
	}

	resp, err := b.info.HTTPClient().Fetch(req)
	if err != nil {
		return store.RpRead{}, nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return store.RpRead{Size: resp.ContentLength}, resp.Body, nil

	case http.StatusOK:
		if args.Range.IsFull() {
			return store.RpRead{Size: resp.ContentLength}, resp.Body, nil
		}
		return b.sliceFullBody(resp, path, args.Range)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return store.RpRead{}, nil, parseError(resp, body, path)
	}
}

// sliceFullBody serves a range from a 200 response of a server that
// ignored the Range header: the prefix is discarded and the rest capped.
func (b *Backend) sliceFullBody(resp *http.Response, path string, r store.BytesRange) (store.RpRead, store.Reader, error) {
	size := int64(-1)
	offset := r.Offset
	if resp.ContentLength >= 0 {
		off, length, err := r.Resolve(uint64(resp.ContentLength))
		if err != nil {
			_ = resp.Body.Close()
			return store.RpRead{}, nil, err
		}
		offset, size = off, int64(length)
	} else if r.HasSize() {
		size = r.Size
	}

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, resp.Body, int64(offset)); err != nil {
			_ = resp.Body.Close()
			if err == io.EOF {
				return store.RpRead{}, nil, store.Errorf(store.KindRangeNotSatisfied,
					"range %s is beyond object size", r).WithPath(path)
			}
			return store.RpRead{}, nil, store.NewError(store.KindUnexpected, "read response body failed").
				WithPath(path).WithSource(err).SetTemporary()
		}
	}

	var body io.Reader = resp.Body
	if size >= 0 {
		body = io.LimitReader(resp.Body, size)
	}
	return store.RpRead{Size: size}, &bodyReader{Reader: body, body: resp.Body}, nil
}

type bodyReader struct {
	io.Reader
	body io.Closer
}

func (r *bodyReader) Close() error {
	return r.body.Close()
}

// ============================================================================
// Unsupported
// ============================================================================

func (b *Backend) CreateDir(context.Context, string, store.OpCreateDir) (store.RpCreateDir, error) {
	return store.RpCreateDir{}, store.Unsupportedf("http service is read-only")
}

func (b *Backend) Write(context.Context, string, store.OpWrite) (store.RpWrite, store.Writer, error) {
	return store.RpWrite{}, nil, store.Unsupportedf("http service is read-only")
}

func (b *Backend) Delete(context.Context) (store.RpDelete, store.Deleter, error) {
	return store.RpDelete{}, nil, store.Unsupportedf("http service is read-only")
}

func (b *Backend) List(context.Context, string, store.OpList) (store.RpList, store.Lister, error) {
	return store.RpList{}, nil, store.Unsupportedf("http service cannot list")
}

func (b *Backend) Copy(context.Context, string, string, store.OpCopy) (store.RpCopy, error) {
	return store.RpCopy{}, store.Unsupportedf("http service is read-only")
}

func (b *Backend) Rename(context.Context, string, string, store.OpRename) (store.RpRename, error) {
	return store.RpRename{}, store.Unsupportedf("http service is read-only")
}

// ============================================================================
// Headers and errors
// ============================================================================

func parseMetadata(resp *http.Response) (store.Metadata, error) {
	h := resp.Header
	meta := store.NewMetadata(store.ModeFile)
	if resp.ContentLength >= 0 {
		meta.ContentLength = uint64(resp.ContentLength)
	} else if v := h.Get("Content-Length"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return store.Metadata{}, store.Errorf(store.KindUnexpected, "invalid Content-Length %q", v)
		}
		meta.ContentLength = n
	}
	meta.ContentType = h.Get("Content-Type")
	meta.ETag = h.Get("ETag")
	meta.ContentMD5 = h.Get("Content-MD5")
	if v := h.Get("Last-Modified"); v != "" {
		t, err := store.ParseHTTPDate(v)
		if err != nil {
			return store.Metadata{}, err
		}
		meta.LastModified = t.UTC()
	}
	return meta, nil
}

// parseError maps a non-success response to a store error.
func parseError(resp *http.Response, body []byte, path string) error {
	e := store.HTTPStatusError(resp, body).WithPath(path)
	if v := resp.Header.Get("Retry-After"); v != "" {
		e.WithContext("retry_after", v)
	}
	return e
}
