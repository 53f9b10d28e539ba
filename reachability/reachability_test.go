package reachability_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/icrar/dfms/reachability"
)

func TestPortIsOpenSucceedsAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	p := reachability.NewProber()
	zero := time.Duration(0)
	open, err := p.PortIsOpen(context.Background(), host, port, &zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Fatal("expected port to be reported open")
	}
}

func TestPortIsOpenSingleAttemptOnRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	ln.Close() // nothing listening now: connections should be refused

	p := &reachability.Prober{Clock: clock.WallClock}
	zero := time.Duration(0)
	open, err := p.PortIsOpen(context.Background(), host, port, &zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open {
		t.Fatal("expected port to be reported closed")
	}
}

func TestPortIsOpenNilTimeoutRetriesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	ln.Close()

	p := &reachability.Prober{Clock: clock.WallClock}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	open, err := p.PortIsOpen(ctx, host, port, nil)
	if open {
		t.Fatal("expected port to stay closed")
	}
	if err == nil {
		t.Fatal("expected context cancellation to surface as an error")
	}
}
