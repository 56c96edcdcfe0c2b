// Package fetch downloads the two remote inputs of a tagging run: the probe
// result table and node lists. Every failure is a *FetchError whose AppError
// can be handed to an HTTP client as-is.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/subtagger/internal/model"
)

type Kind int

const (
	KindProbeTable Kind = iota
	KindNodeList
)

func (k Kind) stage() string {
	switch k {
	case KindProbeTable:
		return "fetch_probe"
	case KindNodeList:
		return "fetch_nodes"
	}
	return "fetch"
}

func (k Kind) accept() string {
	if k == KindProbeTable {
		return "application/json, text/plain;q=0.5, */*;q=0.1"
	}
	return "application/yaml, application/json, text/plain;q=0.9, */*;q=0.1"
}

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxRedirects = 5
	probeTableMaxBytes  = 8 << 20
	nodeListMaxBytes    = 5 << 20
)

// Options tune one fetch. Zero values take the defaults for the Kind.
type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default 8 MiB for probe tables, 5 MiB for node lists
	MaxRedirects int           // default 5

	// CacheBustParam, when set, is added to the query with the current time so
	// intermediate caches (nginx, CDN) hand out a fresh copy.
	CacheBustParam string

	UserAgent string
}

func (o Options) withDefaults(k Kind) Options {
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = defaultMaxRedirects
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = nodeListMaxBytes
		if k == KindProbeTable {
			o.MaxBytes = probeTableMaxBytes
		}
	}
	return o
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errRedirectBadScheme = errors.New("redirect target scheme is not http/https")
)

// now is replaced in tests.
var now = time.Now

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

// FetchTextWithOptions performs exactly one GET. There are no retries here;
// callers that want them wrap this function.
func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	f := fetcher{kind: kind, rawURL: rawURL, opt: opt.withDefaults(kind)}
	return f.run(ctx)
}

type fetcher struct {
	kind   Kind
	rawURL string
	opt    Options
}

func (f fetcher) fail(status int, code, message string, cause error) error {
	return &FetchError{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   f.kind.stage(),
			URL:     f.rawURL,
		},
		Cause: cause,
	}
}

func (f fetcher) run(ctx context.Context) (string, error) {
	if f.opt.MaxBytes <= 0 {
		return "", f.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "响应大小上限必须大于 0", nil)
	}
	target, err := f.target()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", f.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", err)
	}
	req.Header.Set("Accept", f.kind.accept())
	if f.opt.UserAgent != "" {
		req.Header.Set("User-Agent", f.opt.UserAgent)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return "", f.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", f.fail(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), nil)
	}
	if resp.ContentLength > f.opt.MaxBytes {
		return "", f.tooLarge()
	}
	return f.readBody(resp.Body)
}

// target validates the scheme and applies the cache-bust parameter.
func (f fetcher) target() (string, error) {
	u, err := url.Parse(f.rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", f.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "仅允许 http/https URL", err)
	}
	if p := f.opt.CacheBustParam; p != "" {
		q := u.Query()
		q.Set(p, strconv.FormatInt(now().UnixNano(), 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (f fetcher) client() *http.Client {
	limit := f.opt.MaxRedirects
	return &http.Client{
		Timeout:   f.opt.Timeout,
		Transport: http.DefaultTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// len(via) is the number of redirects followed so far, this one included.
			if len(via) > limit {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}
}

func (f fetcher) transportError(err error) error {
	switch {
	case errors.Is(err, errTooManyRedirects):
		return f.fail(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("重定向次数超过上限（>%d）", f.opt.MaxRedirects), err)
	case errors.Is(err, errRedirectBadScheme):
		return f.fail(http.StatusBadRequest, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", err)
	case isTimeout(err):
		return f.fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", err)
	case errors.Is(err, context.Canceled):
		return f.fail(http.StatusServiceUnavailable, "FETCH_CANCELED", "拉取远程资源被取消", err)
	default:
		return f.fail(http.StatusBadGateway, "FETCH_FAILED", "拉取远程资源失败", err)
	}
}

// readBody reads at most MaxBytes+1 so an oversized body is detected even
// when the server sent no Content-Length.
func (f fetcher) readBody(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.opt.MaxBytes+1))
	switch {
	case err != nil && isTimeout(err):
		return "", f.fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", err)
	case err != nil:
		return "", f.fail(http.StatusBadGateway, "FETCH_FAILED", "读取上游响应失败", err)
	case int64(len(body)) > f.opt.MaxBytes:
		return "", f.tooLarge()
	case !utf8.Valid(body):
		return "", f.fail(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "远程资源不是合法 UTF-8 文本", nil)
	}
	return string(body), nil
}

func (f fetcher) tooLarge() error {
	return f.fail(http.StatusUnprocessableEntity, "TOO_LARGE", fmt.Sprintf("远程资源过大（>%d bytes）", f.opt.MaxBytes), nil)
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
