// Package fanout replicates an operation across a set of hosts
// concurrently, bounded by a worker pool, collecting per-host results and
// aggregating per-host failures instead of failing fast. It is the Go
// port of CompositeManager.replicate/_do_in_host, sized the way
// CompositeManager.__init__ sizes its multiprocessing.pool.ThreadPool
// (max(1, min(len(dmHosts), 20))), and shaped after the
// goroutine/sync.Mutex/channel idiom of Chapter12/dbspgraph.workerPool.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/metrics"
)

// maxWorkers bounds the size of an Executor's pool, mirroring the "20" in
// max(1, min(len(dmHosts), 20)).
const maxWorkers = 20

// Func is the per-item unit of work a fan-out runs. It returns an
// arbitrary result (nil if the caller doesn't need a per-item result) or
// an error.
type Func func(ctx context.Context, host string) (interface{}, error)

// Executor bounds the number of in-flight Funcs to
// max(1, min(len(hosts), 20)), exactly as the upstream thread pool is
// sized once, at construction time, from the manager's host list.
type Executor struct {
	sem chan struct{}
}

// NewExecutor sizes the pool from the number of hosts this manager
// initially knows about.
func NewExecutor(hostCount int) *Executor {
	workers := hostCount
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return &Executor{sem: make(chan struct{}, workers)}
}

// Close is present for symmetry with the upstream tp.close()/tp.join()
// shutdown pair and does nothing: the buffered-channel semaphore needs no
// teardown. Each Run waits for its own goroutines before returning; Close
// does not wait for Run calls still in progress on other goroutines.
func (e *Executor) Close() {}

// Run invokes fn once per host concurrently, bounded by the executor's
// pool. It collects each host's result into a map, and returns a
// *dmerrors.SubManagerError aggregating every host's failure (nil if none
// failed) — a single host's error never stops the others, matching
// _do_in_host's capture-then-continue semantics.
func (e *Executor) Run(ctx context.Context, sessionID, action string, hosts []string, fn Func) (map[string]interface{}, error) {
	start := time.Now()
	results := make(map[string]interface{}, len(hosts))
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, host := range hosts {
		host := host
		wg.Add(1)
		e.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-e.sem }()

			res, err := fn(ctx, host)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[host] = err
				return
			}
			if res != nil {
				results[host] = res
			}
		}()
	}
	wg.Wait()

	err := dmerrors.NewSubManagerError(action, sessionID, errs)
	metrics.ObserveFanout(action, err, time.Since(start))
	return results, err
}
