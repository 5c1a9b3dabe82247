package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultConnectionTimeout = 5 * time.Second

// Executor runs one GET per probe, following redirects. Timeout bounds the
// time from dispatch until response headers arrive; draining the body is not
// covered by it.
type Executor struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	return &Executor{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
				// keep Content-Length as sent by the server
				DisableCompression: true,
			},
		},
		Timeout: timeout,
	}
}

func (e *Executor) Probe(ctx context.Context, target string) Outcome {
	start := time.Now()
	u, err := SanitizeURL(target)
	if err != nil {
		return Outcome{Err: fmt.Errorf("parse url: %w", err)}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := time.AfterFunc(e.Timeout, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		timer.Stop()
		return Outcome{Err: err}
	}

	resp, err := e.Client.Do(req)
	timer.Stop()
	if err != nil {
		return Outcome{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return Outcome{Err: fmt.Errorf("read body: %w", err), Latency: time.Since(start)}
	}
	length := n
	if resp.ContentLength >= 0 {
		length = resp.ContentLength
	}
	return Outcome{
		StatusCode:    resp.StatusCode,
		ContentLength: length,
		Latency:       time.Since(start),
	}
}
