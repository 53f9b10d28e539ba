// Package client implements the Remote Agent Client: a thin, traced
// handle to a single child drop-manager, one method per Drop-Manager
// operation. It mirrors the method-per-RPC shape of
// Chapter09/linksrus/linkgraphapi.LinkGraphClient and the traced-dial
// shape of Chapter11/tracing/service.Gateway, but speaks to the child
// through rpcjson's codec and grpc.ClientConn.Invoke instead of a
// generated stub, since no .proto sources exist for this message set.
package client

import (
	"context"

	"github.com/grpc-ecosystem/grpc-opentracing/go/otgrpc"
	"github.com/opentracing/opentracing-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/dropspec"
	"github.com/icrar/dfms/metrics"
	"github.com/icrar/dfms/rpcjson"
)

// Invoker is the subset of *grpc.ClientConn that Client depends on.
// Production code wires a real *grpc.ClientConn; client/mocks holds a
// hand-written gomock-style fake implementing this interface for tests
// that don't want to stand up a real gRPC server.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
	Close() error
}

// Dialer opens a connection to a child agent. Production code uses Dial;
// tests substitute a fake returning an in-process Invoker.
type Dialer func(ctx context.Context, addr string, tracer opentracing.Tracer) (Invoker, error)

// Dial opens a gRPC connection to addr, tracing every unary call through
// tracer via otgrpc, matching Chapter11/tracing/service.Gateway's dial
// options.
func Dial(ctx context.Context, addr string, tracer opentracing.Tracer) (Invoker, error) {
	tracerOpt := grpc.WithUnaryInterceptor(otgrpc.OpenTracingClientInterceptor(tracer))
	conn, err := grpc.DialContext(ctx, addr, grpc.WithInsecure(), tracerOpt)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client is a scoped handle to one child agent at (Host, Port).
type Client struct {
	Host string
	Port int

	conn   Invoker
	tracer opentracing.Tracer
}

// New wraps an already-dialed connection as a Client for host:port.
func New(host string, port int, conn Invoker, tracer opentracing.Tracer) *Client {
	return &Client{Host: host, Port: port, conn: conn, tracer: tracer}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, method)
	defer span.Finish()
	defer func() { metrics.ObserveRemoteCall(method, err) }()

	rpcErr := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(rpcjson.Name))
	if rpcErr == nil {
		return nil
	}
	if st, ok := status.FromError(rpcErr); ok && st.Code() != codes.Unavailable {
		err = &dmerrors.RemoteError{Host: c.Host, Err: rpcErr}
		return err
	}
	err = &dmerrors.TransportError{Host: c.Host, Port: c.Port, Err: rpcErr}
	return err
}

// CreateSessionRequest is the payload for CreateSession.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

// CreateSession creates a session on the child agent.
func (c *Client) CreateSession(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "/dfms.NodeManager/CreateSession", &CreateSessionRequest{SessionID: sessionID}, &struct{}{})
}

// DestroySessionRequest is the payload for DestroySession.
type DestroySessionRequest struct {
	SessionID string `json:"session_id"`
}

// DestroySession destroys a session on the child agent.
func (c *Client) DestroySession(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "/dfms.NodeManager/DestroySession", &DestroySessionRequest{SessionID: sessionID}, &struct{}{})
}

// AddGraphSpecRequest is the payload for AddGraphSpec.
type AddGraphSpecRequest struct {
	SessionID string               `json:"session_id"`
	DropSpecs []*dropspec.DropSpec `json:"drop_specs"`
}

// AddGraphSpec appends the given drop specs to a session's graph on the
// child agent.
func (c *Client) AddGraphSpec(ctx context.Context, sessionID string, specs []*dropspec.DropSpec) error {
	req := &AddGraphSpecRequest{SessionID: sessionID, DropSpecs: specs}
	return c.invoke(ctx, "/dfms.NodeManager/AddGraphSpec", req, &struct{}{})
}

// DeploySessionRequest is the payload for DeploySession.
type DeploySessionRequest struct {
	SessionID string `json:"session_id"`
}

// DeploySession deploys a previously-submitted session on the child agent.
func (c *Client) DeploySession(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "/dfms.NodeManager/DeploySession", &DeploySessionRequest{SessionID: sessionID}, &struct{}{})
}

// AddNodeSubscriptionsRequest is the payload for AddNodeSubscriptions.
type AddNodeSubscriptionsRequest struct {
	SessionID     string             `json:"session_id"`
	Relationships []dropspec.DropRel `json:"relationships"`
}

// AddNodeSubscriptions tells a leaf Node which remote UIDs it must
// subscribe to for a given session, used during deploySession's
// node-subscription phase.
func (c *Client) AddNodeSubscriptions(ctx context.Context, sessionID string, rels []dropspec.DropRel) error {
	req := &AddNodeSubscriptionsRequest{SessionID: sessionID, Relationships: rels}
	return c.invoke(ctx, "/dfms.NodeManager/AddNodeSubscriptions", req, &struct{}{})
}

// TriggerDropsRequest is the payload for TriggerDrops.
type TriggerDropsRequest struct {
	SessionID string   `json:"session_id"`
	UIDs      []string `json:"uids"`
}

// TriggerDrops moves the named UIDs on a leaf Node to COMPLETED, used once
// deploySession has finished wiring up subscriptions.
func (c *Client) TriggerDrops(ctx context.Context, sessionID string, uids []string) error {
	req := &TriggerDropsRequest{SessionID: sessionID, UIDs: uids}
	return c.invoke(ctx, "/dfms.NodeManager/TriggerDrops", req, &struct{}{})
}

// GetGraphResponse is the payload returned by GetGraph.
type GetGraphResponse struct {
	Graph dropspec.Graph `json:"graph"`
}

// GetGraph fetches the child's view of a session's graph.
func (c *Client) GetGraph(ctx context.Context, sessionID string) (dropspec.Graph, error) {
	resp := &GetGraphResponse{}
	if err := c.invoke(ctx, "/dfms.NodeManager/GetGraph", &sessionOnlyRequest{sessionID}, resp); err != nil {
		return nil, err
	}
	return resp.Graph, nil
}

// GetGraphStatusResponse is the payload returned by GetGraphStatus.
type GetGraphStatusResponse struct {
	Status map[string]string `json:"status"`
}

// GetGraphStatus fetches the per-UID status of a session's graph.
func (c *Client) GetGraphStatus(ctx context.Context, sessionID string) (map[string]string, error) {
	resp := &GetGraphStatusResponse{}
	if err := c.invoke(ctx, "/dfms.NodeManager/GetGraphStatus", &sessionOnlyRequest{sessionID}, resp); err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// GetSessionStatusResponse is the payload returned by GetSessionStatus.
type GetSessionStatusResponse struct {
	Status string `json:"status"`
}

// GetSessionStatus fetches the session-level status (not the per-drop
// status) from the child agent.
func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (string, error) {
	resp := &GetSessionStatusResponse{}
	if err := c.invoke(ctx, "/dfms.NodeManager/GetSessionStatus", &sessionOnlyRequest{sessionID}, resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// GetGraphSizeResponse is the payload returned by GetGraphSize.
type GetGraphSizeResponse struct {
	Size int `json:"size"`
}

// GetGraphSize fetches the number of drops in a session's graph on the
// child agent.
func (c *Client) GetGraphSize(ctx context.Context, sessionID string) (int, error) {
	resp := &GetGraphSizeResponse{}
	if err := c.invoke(ctx, "/dfms.NodeManager/GetGraphSize", &sessionOnlyRequest{sessionID}, resp); err != nil {
		return 0, err
	}
	return resp.Size, nil
}

type sessionOnlyRequest struct {
	SessionID string `json:"session_id"`
}
