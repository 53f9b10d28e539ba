package fanout_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/fanout"
)

func TestRunCollectsResultsFromEveryHost(t *testing.T) {
	ex := fanout.NewExecutor(3)
	results, err := ex.Run(context.Background(), "s1", "testing", []string{"a", "b", "c"}, func(ctx context.Context, host string) (interface{}, error) {
		return host + "-ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 || results["a"] != "a-ok" {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestRunAggregatesFailuresWithoutCancellingSiblings(t *testing.T) {
	ex := fanout.NewExecutor(3)
	var succeeded int32
	_, err := ex.Run(context.Background(), "s1", "creating sessions", []string{"a", "b", "c"}, func(ctx context.Context, host string) (interface{}, error) {
		if host == "b" {
			return nil, errors.New("boom")
		}
		atomic.AddInt32(&succeeded, 1)
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	var subErr *dmerrors.SubManagerError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubManagerError, got %T", err)
	}
	if len(subErr.Errors) != 1 {
		t.Fatalf("expected exactly one failing host, got %#v", subErr.Errors)
	}
	if atomic.LoadInt32(&succeeded) != 2 {
		t.Fatalf("expected the other two hosts to still succeed, got %d", succeeded)
	}
}

func TestNewExecutorAcceptsZeroAndHugeHostCounts(t *testing.T) {
	if ex := fanout.NewExecutor(0); ex == nil {
		t.Fatal("expected a non-nil executor even for zero hosts")
	}
	if ex := fanout.NewExecutor(1000); ex == nil {
		t.Fatal("expected a non-nil executor even for a huge host count")
	}
}
