// Package reachability probes whether a child agent's port is open,
// porting dfms.utils.writeToRemotePort's exact retry/timeout semantics:
// a zero timeout means a single attempt, a nil timeout means retry
// forever, and a positive timeout retries on ECONNREFUSED until the
// deadline. The 100ms backoff between refused-connection attempts uses
// the juju/clock abstraction, the same one Chapter04/dialer.RetryingDialer
// uses for its own cancellable waits.
package reachability

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/clock"
)

// retryDelay is the pause between ECONNREFUSED retries, matching
// utils.py's time.sleep(0.1).
const retryDelay = 100 * time.Millisecond

// Prober checks whether a given host:port accepts connections.
type Prober struct {
	Clock clock.Clock
}

// NewProber returns a Prober using the wall clock.
func NewProber() *Prober {
	return &Prober{Clock: clock.WallClock}
}

// PortIsOpen reports whether host:port accepts a TCP connection. timeout
// nil means retry indefinitely until ctx is done; timeout == 0 means try
// exactly once; a positive timeout retries on connection-refused until
// that much time has elapsed.
func (p *Prober) PortIsOpen(ctx context.Context, host string, port int, timeout *time.Duration) (bool, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	start := p.clock().Now()

	for {
		dialTimeout := remaining(timeout, start, p.clock().Now())
		conn, err := p.dial(ctx, addr, dialTimeout)
		if err == nil {
			conn.Close()
			return true, nil
		}

		if isTimeout(err) {
			return false, nil
		}
		if isConnReset(err) {
			return false, nil
		}
		if !isConnRefused(err) {
			return false, err
		}

		if timeout != nil {
			if p.clock().Now().Sub(start) > *timeout {
				return false, nil
			}
		}

		select {
		case <-p.clock().After(retryDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (p *Prober) clock() clock.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clock.WallClock
}

// remaining computes the per-attempt dial deadline: nil when timeout is
// nil or zero (a single unbounded/immediate attempt), otherwise the time
// left until the overall deadline.
func remaining(timeout *time.Duration, start, now time.Time) *time.Duration {
	if timeout == nil || *timeout == 0 {
		return nil
	}
	left := *timeout - now.Sub(start)
	return &left
}

func (p *Prober) dial(ctx context.Context, addr string, timeout *time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{}
	if timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}
