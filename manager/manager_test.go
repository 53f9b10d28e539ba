package manager

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/juju/clock"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	gc "gopkg.in/check.v1"

	"github.com/icrar/dfms/client"
	"github.com/icrar/dfms/client/mocks"
	"github.com/icrar/dfms/constants"
	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/dropspec"
	"github.com/icrar/dfms/fanout"
	"github.com/icrar/dfms/reachability"
	"github.com/icrar/dfms/supervisor"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(ManagerTestSuite))

// ManagerTestSuite exercises the Manager facade without a real SSH/gRPC
// stack: EnsureDM is satisfied by a loopback listener every 127.0.0.0/8
// host can reach, and every child RPC is served by a per-host gomock
// Invoker.
type ManagerTestSuite struct {
	listener net.Listener
	port     int
}

func (s *ManagerTestSuite) SetUpTest(c *gc.C) {
	// Bound to all interfaces (not just 127.0.0.1) so every 127.0.0.0/8
	// address the suite probes as a distinct host reaches this listener.
	l, err := net.Listen("tcp", ":0")
	c.Assert(err, gc.IsNil)
	s.listener = l
	s.port = l.Addr().(*net.TCPAddr).Port
}

func (s *ManagerTestSuite) TearDownTest(c *gc.C) {
	_ = s.listener.Close()
}

// newManager builds a Manager directly (bypassing New's real tracer and
// background supervisor goroutine) wired to dial via dial for every host.
func (s *ManagerTestSuite) newManager(hosts []string, dial client.Dialer) *Manager {
	return s.newManagerWithProfile(constants.IslandProfile, hosts, dial)
}

// newManagerWithProfile is newManager with an explicit profile, used to
// exercise the Master tier (partitioned on "island" rather than "node").
func (s *ManagerTestSuite) newManagerWithProfile(profile constants.Profile, hosts []string, dial client.Dialer) *Manager {
	return &Manager{
		cfg:      Config{Dial: dial, Logger: logrus.NewEntry(logrus.StandardLogger())},
		profile:  profile,
		tracer:   opentracing.NoopTracer{},
		hosts:    hosts,
		graph:    make(dropspec.Graph),
		dropRels: make(dropspec.InterPartitionMap),
		states:   make(map[string]SessionState),
		executor: fanout.NewExecutor(len(hosts)),
		supervisor: &supervisor.Supervisor{
			Hosts:        hosts,
			Port:         s.port,
			CheckTimeout: time.Second,
			Prober:       reachability.NewProber(),
			Logger:       logrus.NewEntry(logrus.StandardLogger()),
			Clock:        clock.WallClock,
		},
	}
}

func hostOf(c *gc.C, addr string) string {
	host, _, err := net.SplitHostPort(addr)
	c.Assert(err, gc.IsNil)
	return host
}

func (s *ManagerTestSuite) TestCreateSessionReplicatesToEveryHost(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	hosts := []string{"127.0.0.1", "127.0.0.2"}
	invokers := map[string]*mocks.MockInvoker{}
	for _, h := range hosts {
		inv := mocks.NewMockInvoker(ctrl)
		inv.EXPECT().
			Invoke(gomock.Any(), "/dfms.NodeManager/CreateSession", gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)
		inv.EXPECT().Close().Return(nil)
		invokers[h] = inv
	}

	dial := func(ctx context.Context, addr string, tracer opentracing.Tracer) (client.Invoker, error) {
		return invokers[hostOf(c, addr)], nil
	}

	m := s.newManager(hosts, dial)
	c.Assert(m.CreateSession(context.Background(), "sess-1"), gc.IsNil)
	c.Assert(m.GetSessionIDs(), gc.DeepEquals, []string{"sess-1"})
	c.Assert(m.states["sess-1"], gc.Equals, SessionCreated)
}

func (s *ManagerTestSuite) TestCreateSessionAggregatesPerHostFailures(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	okInv := mocks.NewMockInvoker(ctrl)
	okInv.EXPECT().
		Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	okInv.EXPECT().Close().Return(nil)

	badInv := mocks.NewMockInvoker(ctrl)
	badInv.EXPECT().
		Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused"))
	badInv.EXPECT().Close().Return(nil)

	hosts := []string{"127.0.0.1", "127.0.0.2"}
	dial := func(ctx context.Context, addr string, tracer opentracing.Tracer) (client.Invoker, error) {
		if hostOf(c, addr) == "127.0.0.1" {
			return okInv, nil
		}
		return badInv, nil
	}

	m := s.newManager(hosts, dial)
	err := m.CreateSession(context.Background(), "sess-2")
	c.Assert(err, gc.NotNil)

	var subErr *dmerrors.SubManagerError
	c.Assert(errors.As(err, &subErr), gc.Equals, true)
	c.Assert(subErr.Errors, gc.HasLen, 1)
	c.Assert(m.GetSessionIDs(), gc.HasLen, 0)
}

func (s *ManagerTestSuite) TestAddGraphSpecPartitionsAndRecordsInterPartitionLinks(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	hosts := []string{"127.0.0.1", "127.0.0.2"}
	received := map[string][]*dropspec.DropSpec{}
	invokers := map[string]*mocks.MockInvoker{}
	for _, h := range hosts {
		h := h
		inv := mocks.NewMockInvoker(ctrl)
		inv.EXPECT().
			Invoke(gomock.Any(), "/dfms.NodeManager/AddGraphSpec", gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error {
				req := args.(*client.AddGraphSpecRequest)
				received[h] = req.DropSpecs
				return nil
			})
		inv.EXPECT().Close().Return(nil)
		invokers[h] = inv
	}

	dial := func(ctx context.Context, addr string, tracer opentracing.Tracer) (client.Invoker, error) {
		return invokers[hostOf(c, addr)], nil
	}

	m := s.newManager(hosts, dial)

	a := &dropspec.DropSpec{OID: "a", Node: "127.0.0.1"}
	b := &dropspec.DropSpec{OID: "b", Node: "127.0.0.2", Extra: map[string]interface{}{
		dropspec.RelProducers: []string{"a"},
	}}

	err := m.AddGraphSpec(context.Background(), "sess-3", []*dropspec.DropSpec{a, b})
	c.Assert(err, gc.IsNil)
	c.Assert(received["127.0.0.1"], gc.HasLen, 1)
	c.Assert(received["127.0.0.2"], gc.HasLen, 1)

	rels := m.dropRels.All("sess-3")
	c.Assert(rels, gc.HasLen, 1)
	c.Assert(rels[0].LHS, gc.Equals, "b")
	c.Assert(rels[0].RHS, gc.Equals, "a")
}

func (s *ManagerTestSuite) TestAddGraphSpecRejectsUnknownHost(c *gc.C) {
	m := s.newManager([]string{"127.0.0.1"}, nil)
	spec := &dropspec.DropSpec{OID: "x", Node: "not-a-host"}
	err := m.AddGraphSpec(context.Background(), "sess-4", []*dropspec.DropSpec{spec})
	c.Assert(err, gc.NotNil)

	var invalid *dmerrors.InvalidGraphError
	c.Assert(errors.As(err, &invalid), gc.Equals, true)
}

// TestAddGraphSpecPartitionsByIslandAtMasterTier is a Master-tier
// (constants.MasterProfile) counterpart to
// TestAddGraphSpecPartitionsAndRecordsInterPartitionLinks: it carries
// specs with distinct Node and Island values to confirm a Master manager
// buckets the graph across Islands using Island, while inter-partition
// subscription routing still keys off Node (the leaf Node the drop
// ultimately belongs to) — the two must never collapse onto one field.
func (s *ManagerTestSuite) TestAddGraphSpecPartitionsByIslandAtMasterTier(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	islandHosts := []string{"127.0.0.3", "127.0.0.4"}
	received := map[string][]*dropspec.DropSpec{}
	invokers := map[string]*mocks.MockInvoker{}
	for _, h := range islandHosts {
		h := h
		inv := mocks.NewMockInvoker(ctrl)
		inv.EXPECT().
			Invoke(gomock.Any(), "/dfms.NodeManager/AddGraphSpec", gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error {
				req := args.(*client.AddGraphSpecRequest)
				received[h] = req.DropSpecs
				return nil
			})
		inv.EXPECT().Close().Return(nil)
		invokers[h] = inv
	}

	dial := func(ctx context.Context, addr string, tracer opentracing.Tracer) (client.Invoker, error) {
		return invokers[hostOf(c, addr)], nil
	}

	m := s.newManagerWithProfile(constants.MasterProfile, islandHosts, dial)

	a := &dropspec.DropSpec{OID: "a", Island: "127.0.0.3", Node: "leaf-node-1"}
	b := &dropspec.DropSpec{OID: "b", Island: "127.0.0.4", Node: "leaf-node-2", Extra: map[string]interface{}{
		dropspec.RelProducers: []string{"a"},
	}}

	err := m.AddGraphSpec(context.Background(), "sess-5", []*dropspec.DropSpec{a, b})
	c.Assert(err, gc.IsNil)

	// Bucketing happened by Island, not Node: each Island host received
	// exactly the one spec pinned to it.
	c.Assert(received["127.0.0.3"], gc.HasLen, 1)
	c.Assert(received["127.0.0.3"][0].OID, gc.Equals, "a")
	c.Assert(received["127.0.0.4"], gc.HasLen, 1)
	c.Assert(received["127.0.0.4"][0].OID, gc.Equals, "b")

	// Inter-partition routing is keyed by the leaf Node, not the Island,
	// since subscription/trigger delivery always bypasses the hierarchy
	// down to the Node regardless of which tier partitioned the graph.
	rels := m.dropRels.Rels("sess-5")
	c.Assert(rels["leaf-node-1"]["leaf-node-2"], gc.HasLen, 1)
	c.Assert(rels["127.0.0.3"], gc.HasLen, 0)
	c.Assert(rels["127.0.0.4"], gc.HasLen, 0)
}
