// Package httpclient wraps the raw HTTP transport (itself an opaque
// collaborator) with the domain's response-code taxonomy, size
// verification, single-attempt retry, HTTP/2 preference, and client-side
// request pacing.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

const defaultUserAgent = "curl/7.80.0"

// Client performs GETs against the replication server, attaching a cookie
// when supplied and pacing requests through a shared rate limiter.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Config tunes the client; zero-value Config yields sane defaults (no body
// timeout, 4 req/s pacing, 50-redirect cap, curl/7.80.0 user-agent).
type Config struct {
	Timeout        time.Duration // 0 = no timeout
	RequestsPerSec float64       // 0 = default 4
	MaxRedirects   int           // 0 = default 50
	UserAgent      string        // "" = default curl/7.80.0
}

// New builds a Client per Config, preferring HTTP/2 over TLS.
func New(cfg Config) *Client {
	transport := &http.Transport{}
	http2.ConfigureTransport(transport)
	transport.DisableKeepAlives = false

	maxRedirects := cfg.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 50
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 4
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		userAgent: ua,
	}
}

// DownloadResult reports the outcome of a successful download.
type DownloadResult struct {
	Bytes int64
}

// DownloadToFile performs a single GET, writing the body to outPath only if
// the response is 200 and the byte count matches both Content-Length (when
// present) and the resulting file size. cookie may be empty.
func (c *Client) DownloadToFile(ctx context.Context, url, outPath, cookie string) (*DownloadResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errkind.Wrap(errkind.NetError, "rate limiter wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.FatalInternal, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, kindErr
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, "creating download destination", err)
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(outPath)
		if copyErr == io.ErrUnexpectedEOF {
			// The body ended before the declared Content-Length was reached.
			return nil, errkind.New(errkind.IoError, errkind.BadSizeDownload+": body shorter than Content-Length")
		}
		return nil, classifyTransportError(copyErr)
	}
	if closeErr != nil {
		os.Remove(outPath)
		return nil, errkind.Wrap(errkind.IoError, "closing download destination", closeErr)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		declared, perr := strconv.ParseInt(cl, 10, 64)
		if perr == nil && declared != n {
			os.Remove(outPath)
			return nil, errkind.New(errkind.IoError, fmt.Sprintf("%s: declared %s, wrote %s",
				errkind.BadSizeDownload, humanize.Bytes(uint64(declared)), humanize.Bytes(uint64(n))))
		}
	}
	if fi, statErr := os.Stat(outPath); statErr == nil && fi.Size() != n {
		os.Remove(outPath)
		return nil, errkind.New(errkind.IoError, errkind.BadSizeDownload+": on-disk size mismatch")
	}

	return &DownloadResult{Bytes: n}, nil
}

// retryableMessages are the Message values DownloadToFileRetry retries,
// exactly once, after a 60-second sleep.
var retryableMessages = map[string]bool{
	errkind.TransientServer:  true,
	errkind.NetworkDown:      true,
	errkind.HostUnresolvable: true,
}

// DownloadToFileRetry wraps DownloadToFile with exactly one retry, after a
// 60-second sleep, for TransientServer/NetworkDown/HostUnresolvable. No
// other class is retried here — the orchestrator decides higher-level
// retries here.
func (c *Client) DownloadToFileRetry(ctx context.Context, url, outPath, cookie string) (*DownloadResult, error) {
	res, err := c.DownloadToFile(ctx, url, outPath, cookie)
	if err == nil {
		return res, nil
	}
	e, ok := errkind.As(err)
	if !ok || !retryableMessages[e.Message] {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(60 * time.Second):
	}
	return c.DownloadToFile(ctx, url, outPath, cookie)
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusMovedPermanently:
		return errkind.New(errkind.HTTPResponseError, errkind.Redirected)
	case http.StatusBadRequest:
		return errkind.WithCode(code, errkind.BadRequest)
	case http.StatusForbidden:
		return errkind.WithCode(code, errkind.Forbidden)
	case http.StatusNotFound:
		return errkind.WithCode(code, errkind.NotFound)
	case http.StatusTooManyRequests:
		return errkind.WithCode(code, errkind.RateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return errkind.WithCode(code, errkind.TransientServer)
	default:
		return errkind.WithCode(code, errkind.Unhandled)
	}
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if ok := asDNSError(err, &dnsErr); ok {
		return errkind.Wrap(errkind.NetError, errkind.HostUnresolvable, err)
	}
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
		return errkind.Wrap(errkind.NetError, errkind.Timeout, err)
	}
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return errkind.Wrap(errkind.NetError, errkind.NetworkDown, err)
	}
	return errkind.Wrap(errkind.NetError, errkind.NetworkDown, err)
}

// The as* helpers exist because errkind.Error deliberately doesn't pull in
// errors.As's generic form across every call site; a thin local wrapper
// keeps classifyTransportError readable.
func asDNSError(err error, target **net.DNSError) bool {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if d, ok := e.(*net.DNSError); ok {
			*target = d
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if n, ok := e.(net.Error); ok {
			*target = n
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if o, ok := e.(*net.OpError); ok {
			*target = o
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}
