package supervisor_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/icrar/dfms/reachability"
	"github.com/icrar/dfms/supervisor"
)

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

func TestEnsureDMSkipsStartWhenAlreadyPresent(t *testing.T) {
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

	started := false
	s := &supervisor.Supervisor{
		Port:         listenerPort(t, ln),
		CheckTimeout: 0,
		Prober:       reachability.NewProber(),
		Start: func(ctx context.Context, host string) error {
			started = true
			return nil
		},
	}

	if err := s.EnsureDM(context.Background(), "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started {
		t.Fatal("expected Start not to be called when the port is already open")
	}
}

func TestEnsureDMStartsWhenAbsent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listenerPort(t, ln)
	ln.Close()

	var startedFor string
	s := &supervisor.Supervisor{
		Port:         port,
		CheckTimeout: 0,
		Prober:       reachability.NewProber(),
		Start: func(ctx context.Context, host string) error {
			startedFor = host
			return nil // still nothing listening; EnsureDM should report a startup error
		},
	}

	err = s.EnsureDM(context.Background(), "127.0.0.1")
	if err == nil {
		t.Fatal("expected an AgentStartupError since nothing ever starts listening")
	}
	if startedFor != "127.0.0.1" {
		t.Fatalf("expected Start to be invoked for 127.0.0.1, got %q", startedFor)
	}
}

func TestCommandLineMatchesUpstreamFormat(t *testing.T) {
	got := supervisor.CommandLine("dfmsNM", "nm", 8000, "host-1")
	want := "dfmsNM -i nm -P 8000 -d --host host-1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	clk := testclock.NewClock(time.Now())
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

	s := &supervisor.Supervisor{
		Hosts:        []string{"127.0.0.1"},
		Port:         listenerPort(t, ln),
		CheckTimeout: 0,
		Prober:       reachability.NewProber(),
		Start:        func(ctx context.Context, host string) error { return nil },
		Clock:        clk,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after cancellation")
	}
}
