package probe

import (
	"context"
	"time"
)

// Outcome is the result of a single probe.
//
// Fields:
//   - StatusCode: HTTP status code of the final response; 0 when Err is set.
//   - ContentLength: Content-Length header value when the server sent one,
//     otherwise the number of body bytes drained.
//   - Err: transport error. A timeout before headers arrive lands here too.
type Outcome struct {
	StatusCode    int
	ContentLength int64
	Latency       time.Duration
	Err           error
}

func (o Outcome) Success() bool { return o.Err == nil }

// Prober performs one check against a target URL.
type Prober interface {
	Probe(ctx context.Context, target string) Outcome
}

// HostResolver maps a host name to a single address.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}
