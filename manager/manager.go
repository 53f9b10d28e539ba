// Package manager implements the composite Drop-Manager: the recursive
// middle tier of the Master/Island/Node hierarchy, parameterised once per
// tier via constants.Profile. It is the Go port of
// dfms.manager.composite_manager.CompositeManager, composing partition,
// graphloader, fanout, supervisor and client the way the upstream class
// composes graph_loader, multiprocessing.pool.ThreadPool and
// NodeManagerClient.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/icrar/dfms/client"
	"github.com/icrar/dfms/constants"
	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/dropspec"
	"github.com/icrar/dfms/fanout"
	"github.com/icrar/dfms/graphloader"
	"github.com/icrar/dfms/partition"
	"github.com/icrar/dfms/reachability"
	"github.com/icrar/dfms/supervisor"
	"github.com/icrar/dfms/tracing"
)

// Manager is a single tier of the composite manager hierarchy: it owns a
// set of child hosts, partitions submitted graphs across them, makes sure
// they're alive, and replicates session lifecycle operations to all of
// them concurrently.
type Manager struct {
	cfg     Config
	profile constants.Profile
	tracer  opentracing.Tracer

	mu       sync.Mutex
	hosts    []string
	nodes    []string
	graph    dropspec.Graph
	dropRels dropspec.InterPartitionMap
	sessions dropspec.SessionRegistry
	states   map[string]SessionState

	supervisor    *supervisor.Supervisor
	executor      *fanout.Executor
	supervisorCtl context.CancelFunc
}

// New creates a Manager parameterised by profile, matching
// CompositeManager.__init__: the thread pool (here, fanout.Executor) is
// sized once from len(cfg.Hosts), and the background DM checker is
// started immediately.
func New(profile constants.Profile, cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("manager config validation failed: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		profile:  profile,
		tracer:   tracing.MustGetTracer(fmt.Sprintf("dfms-%s-manager", profile.PartitionAttr)),
		hosts:    append([]string(nil), cfg.Hosts...),
		graph:    make(dropspec.Graph),
		dropRels: make(dropspec.InterPartitionMap),
		states:   make(map[string]SessionState),
		executor: fanout.NewExecutor(len(cfg.Hosts)),
	}

	bootstrapper := cfg.bootstrapper()
	m.supervisor = &supervisor.Supervisor{
		Hosts:        m.Hosts(),
		Port:         profile.ChildPort,
		CheckTimeout: time.Duration(cfg.CheckTimeout) * time.Second,
		Prober:       reachability.NewProber(),
		Logger:       cfg.Logger,
		Start: func(ctx context.Context, host string) error {
			cmd := supervisor.CommandLine(profile.ChildExec, profile.ChildShortID, profile.ChildPort, host)
			res, err := bootstrapper.Run(ctx, host, cmd)
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return xerrors.Errorf("failed to start the agent on %s:%d (exit %d): %s",
					host, profile.ChildPort, res.ExitCode, res.Stderr)
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.supervisorCtl = cancel
	go m.supervisor.Run(ctx)

	return m, nil
}

// Close stops the background DM checker. It does not close any
// outstanding child connections, since Manager dials a fresh connection
// per fan-out call and closes it immediately after use (mirroring
// CompositeManager's "with self.dmAt(host) as dm:" pattern).
func (m *Manager) Close() error {
	if m.supervisorCtl != nil {
		m.supervisorCtl()
	}
	return nil
}

// Hosts returns a copy of the hosts this manager is directly responsible
// for.
func (m *Manager) Hosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.hosts))
	copy(out, m.hosts)
	return out
}

// AddHost registers an additional host as managed by this tier.
func (m *Manager) AddHost(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = append(m.hosts, host)
	m.supervisor.Hosts = append(m.supervisor.Hosts, host)
}

// Nodes returns a copy of the bottom-level nodes covered by this manager.
func (m *Manager) Nodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// GetSessionIDs returns every session id known at this tier.
func (m *Manager) GetSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.All()
}

// dialChild ensures host's sub-manager is running, then dials it on port,
// returning a ready-to-use client the caller must Close.
func (m *Manager) dialChild(ctx context.Context, host string, port int) (*client.Client, error) {
	if err := m.supervisor.EnsureDM(ctx, host); err != nil {
		return nil, err
	}
	conn, err := m.cfg.Dial(ctx, fmt.Sprintf("%s:%d", host, port), m.tracer)
	if err != nil {
		return nil, &dmerrors.TransportError{Host: host, Port: port, Err: err}
	}
	return client.New(host, port, conn, m.tracer), nil
}

// startAction opens a span covering every per-host RPC a fan-out action
// makes, tagged with a fresh correlation id so every child span the
// action spawns (each client.Client call starts one of its own via
// opentracing.StartSpanFromContext) can be grouped back under a single
// trace, and logged alongside it for operators correlating logs with
// traces by hand.
func (m *Manager) startAction(ctx context.Context, action, sessionID string) (context.Context, func()) {
	correlationID := uuid.New().String()
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, m.tracer, action,
		opentracing.Tag{Key: "session_id", Value: sessionID},
		opentracing.Tag{Key: "correlation_id", Value: correlationID},
	)
	m.cfg.Logger.WithFields(logrus.Fields{"session_id": sessionID, "correlation_id": correlationID}).
		Debugf("starting %s", action)
	return ctx, span.Finish
}

// replicate runs fn against every host in hosts (defaulting to every host
// this manager owns), wrapping the result in a SubManagerError describing
// action, matching CompositeManager.replicate.
func (m *Manager) replicate(ctx context.Context, sessionID, action string, hosts []string, fn func(ctx context.Context, c *client.Client) (interface{}, error)) (map[string]interface{}, error) {
	if hosts == nil {
		hosts = m.Hosts()
	}
	ctx, finish := m.startAction(ctx, action, sessionID)
	defer finish()
	return m.executor.Run(ctx, sessionID, action, hosts, func(ctx context.Context, host string) (interface{}, error) {
		c, err := m.dialChild(ctx, host, m.profile.ChildPort)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		return fn(ctx, c)
	})
}

// CreateSession creates sessionID on every child, matching
// CompositeManager.createSession.
func (m *Manager) CreateSession(ctx context.Context, sessionID string) error {
	m.cfg.Logger.WithField("session_id", sessionID).Info("creating session in all hosts")
	_, err := m.replicate(ctx, sessionID, "creating sessions", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return nil, c.CreateSession(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions.Add(sessionID)
	m.states[sessionID] = SessionCreated
	m.mu.Unlock()
	m.cfg.Logger.WithField("session_id", sessionID).Info("successfully created session in all hosts")
	return nil
}

// DestroySession destroys sessionID on every child. The action string
// passed to the aggregated error reuses "creating sessions", the same
// copy-pasted text CompositeManager.destroySession uses upstream.
func (m *Manager) DestroySession(ctx context.Context, sessionID string) error {
	m.cfg.Logger.WithField("session_id", sessionID).Info("destroying session in all hosts")
	_, err := m.replicate(ctx, sessionID, "creating sessions", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return nil, c.DestroySession(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions.Remove(sessionID)
	m.states[sessionID] = SessionDestroyed
	m.mu.Unlock()
	return nil
}

// AddGraphSpec partitions graphSpec by this tier's partition attribute,
// strips and sanitises cross-partition relationships, records them for
// later reconnection, and replicates each partition's bucket to its
// owning child. Matches CompositeManager.addGraphSpec.
func (m *Manager) AddGraphSpec(ctx context.Context, sessionID string, specs []*dropspec.DropSpec) error {
	m.cfg.Logger.WithField("session_id", sessionID).Infof("separating graph with %d drop specs", len(specs))

	result, err := partition.Partition(specs, m.Hosts(), m.profile.PartitionAttr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, spec := range specs {
		m.graph.Add(spec)
	}
	sanitized := partition.SanitizeRelations(result.Removed, m.graph)
	partition.RecordInterPartition(m.dropRels, sessionID, sanitized, m.graph)
	m.mu.Unlock()

	m.cfg.Logger.WithField("session_id", sessionID).
		Infof("removed (and sanitized) %d inter-manager relationships", len(result.Removed))

	const action = "appending graphSpec to individual children"
	actionCtx, finish := m.startAction(ctx, action, sessionID)
	defer finish()
	_, err = m.executor.Run(actionCtx, sessionID, action, keys(result.PerHost), func(ctx context.Context, host string) (interface{}, error) {
		c, err := m.dialChild(ctx, host, m.profile.ChildPort)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		return nil, c.AddGraphSpec(ctx, sessionID, result.PerHost[host])
	})
	return err
}

// DeploySession executes deploySession's three strictly-ordered phases:
// deliver node subscriptions directly to leaf Nodes, deploy to direct
// children, then trigger the given completedDrops on the leaf Nodes that
// own them. Matches CompositeManager.deploySession, including its
// documented bypass of the recursive hierarchy for leaf-Node delivery.
func (m *Manager) DeploySession(ctx context.Context, sessionID string, completedDrops []string) error {
	m.mu.Lock()
	rels := m.dropRels.Rels(sessionID)
	graph := m.graph
	m.mu.Unlock()

	// Phase 1: node subscriptions, delivered directly to the leaf Nodes
	// at NodeDefaultRestPort regardless of which tier we are, since
	// EnsureDM only probes and starts this tier's direct children at the
	// profile's ChildPort.
	if len(rels) > 0 {
		hostPairs := make([]string, 0, len(rels))
		for host := range rels {
			hostPairs = append(hostPairs, host)
		}
		const action = "adding relationship information"
		actionCtx, finish := m.startAction(ctx, action, sessionID)
		_, err := m.executor.Run(actionCtx, sessionID, action, hostPairs, func(ctx context.Context, host string) (interface{}, error) {
			conn, err := m.cfg.Dial(ctx, fmt.Sprintf("%s:%d", host, constants.NodeDefaultRestPort), m.tracer)
			if err != nil {
				return nil, &dmerrors.TransportError{Host: host, Port: constants.NodeDefaultRestPort, Err: err}
			}
			c := client.New(host, constants.NodeDefaultRestPort, conn, m.tracer)
			defer c.Close()

			var flat []dropspec.DropRel
			for _, peerRels := range rels[host] {
				flat = append(flat, peerRels...)
			}
			return nil, c.AddNodeSubscriptions(ctx, sessionID, flat)
		})
		finish()
		if err != nil {
			return err
		}
		m.cfg.Logger.WithField("session_id", sessionID).Info("delivered node subscription list to node managers")
	}

	m.cfg.Logger.WithField("session_id", sessionID).Info("deploying session in all hosts")
	_, err := m.replicate(ctx, sessionID, "deploying session", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return nil, c.DeploySession(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.states[sessionID] = SessionDeployed
	m.mu.Unlock()
	m.cfg.Logger.WithField("session_id", sessionID).Info("successfully deployed session in all hosts")

	if len(completedDrops) == 0 {
		return nil
	}

	notFound := make([]string, 0)
	for _, uid := range completedDrops {
		if _, ok := graph[uid]; !ok {
			notFound = append(notFound, uid)
		}
	}
	if len(notFound) > 0 {
		return fmt.Errorf("%w: uids for completed drops not found: %v", dmerrors.UnknownUIDError, notFound)
	}

	byNode := dropspec.GroupByNode(completedDrops, graph)
	triggerHosts := keysOfStringSlice(byNode)
	const triggerAction = "moving drops to completed"
	triggerCtx, finishTrigger := m.startAction(ctx, triggerAction, sessionID)
	defer finishTrigger()
	_, err = m.executor.Run(triggerCtx, sessionID, triggerAction, triggerHosts, func(ctx context.Context, host string) (interface{}, error) {
		conn, err := m.cfg.Dial(ctx, fmt.Sprintf("%s:%d", host, constants.NodeDefaultRestPort), m.tracer)
		if err != nil {
			return nil, &dmerrors.TransportError{Host: host, Port: constants.NodeDefaultRestPort, Err: err}
		}
		c := client.New(host, constants.NodeDefaultRestPort, conn, m.tracer)
		defer c.Close()
		return nil, c.TriggerDrops(ctx, sessionID, byNode[host])
	})
	return err
}

// GetGraph fetches and merges the per-child view of sessionID's graph,
// reconnecting the inter-partition links this manager stripped out at
// AddGraphSpec time.
func (m *Manager) GetGraph(ctx context.Context, sessionID string) (dropspec.Graph, error) {
	merged := make(dropspec.Graph)
	results, err := m.replicate(ctx, sessionID, "getting the graph", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.GetGraph(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		childGraph, ok := res.(dropspec.Graph)
		if !ok {
			continue
		}
		for uid, spec := range childGraph {
			merged[uid] = spec
		}
	}

	m.mu.Lock()
	rels := m.dropRels.All(sessionID)
	m.mu.Unlock()
	for _, rel := range rels {
		graphloader.AddLink(rel.Rel, merged[rel.LHS], rel.RHS)
	}
	return merged, nil
}

// GetGraphStatus fetches the per-child graph status and merges it into a
// single map.
func (m *Manager) GetGraphStatus(ctx context.Context, sessionID string) (map[string]string, error) {
	merged := make(map[string]string)
	results, err := m.replicate(ctx, sessionID, "getting graph status", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.GetGraphStatus(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		childStatus, ok := res.(map[string]string)
		if !ok {
			continue
		}
		for uid, status := range childStatus {
			merged[uid] = status
		}
	}
	return merged, nil
}

// GetSessionStatus fetches each child's overall session status, keyed by
// host.
func (m *Manager) GetSessionStatus(ctx context.Context, sessionID string) (map[string]string, error) {
	merged := make(map[string]string)
	results, err := m.replicate(ctx, sessionID, "getting the session status", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.GetSessionStatus(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	for host, res := range results {
		if status, ok := res.(string); ok {
			merged[host] = status
		}
	}
	return merged, nil
}

// GetGraphSize sums every child's drop count for sessionID.
func (m *Manager) GetGraphSize(ctx context.Context, sessionID string) (int, error) {
	results, err := m.replicate(ctx, sessionID, "getting the graph size", nil, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.GetGraphSize(ctx, sessionID)
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, res := range results {
		if size, ok := res.(int); ok {
			total += size
		}
	}
	return total, nil
}

func keys(m map[string][]*dropspec.DropSpec) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfStringSlice(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

