package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const DefaultDNSTimeout = 3 * time.Second

// LookupFunc matches (*net.Resolver).LookupIP.
type LookupFunc func(ctx context.Context, network, host string) ([]net.IP, error)

type Resolver struct {
	Lookup  LookupFunc
	Timeout time.Duration
}

func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	return &Resolver{
		Lookup:  net.DefaultResolver.LookupIP, // OS resolver
		Timeout: timeout,
	}
}

// Resolve returns the first address of host, preferring IPv4.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "://") {
		return "", &ResolveError{Host: host, Class: ClassInvalidName, Err: ErrEmptyHost}
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	ips, err := r.Lookup(ctx, "ip", host)
	if err != nil {
		return "", &ResolveError{Host: host, Class: classify(err), Err: err}
	}
	if len(ips) == 0 {
		return "", &ResolveError{Host: host, Class: ClassNoARecord}
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return ips[0].String(), nil
}

const (
	ClassNXDomain     = "NXDOMAIN"
	ClassNoARecord    = "NO_A_RECORD"
	ClassServfail     = "SERVFAIL_or_TIMEOUT"
	ClassInvalidName  = "INVALID_NAME"
	ClassUnclassified = "UNCLASSIFIED"
)

type ResolveError struct {
	Host  string
	Class string
	Err   error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return "resolve " + e.Host + ": " + e.Class
	}
	return "resolve " + e.Host + ": " + e.Class + ": " + e.Err.Error()
}

func (e *ResolveError) Unwrap() error { return e.Err }

func classify(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) {
		if de.IsNotFound {
			return ClassNXDomain
		}
		if de.IsTemporary || de.Timeout() {
			return ClassServfail
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassServfail
	}
	return ClassUnclassified
}
