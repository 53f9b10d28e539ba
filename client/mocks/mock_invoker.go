// Package mocks contains a hand-written gomock-style fake for
// client.Invoker, in place of a go:generate'd mockgen output (mockgen
// was not run as part of producing this repo). Shaped the same way
// Chapter12/dbspgraph/mocks' generated fakes are: a struct embedding
// *gomock.Controller plus a recorder type for EXPECT().
package mocks

import (
	"context"
	"reflect"

	"github.com/golang/mock/gomock"
	"google.golang.org/grpc"
)

// MockInvoker is a mock of the client.Invoker interface.
type MockInvoker struct {
	ctrl     *gomock.Controller
	recorder *MockInvokerMockRecorder
}

// MockInvokerMockRecorder is the mock recorder for MockInvoker.
type MockInvokerMockRecorder struct {
	mock *MockInvoker
}

// NewMockInvoker creates a new mock instance.
func NewMockInvoker(ctrl *gomock.Controller) *MockInvoker {
	mock := &MockInvoker{ctrl: ctrl}
	mock.recorder = &MockInvokerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockInvoker) EXPECT() *MockInvokerMockRecorder {
	return m.recorder
}

// Invoke mocks base method.
func (m *MockInvoker) Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error {
	m.ctrl.T.Helper()
	varArgs := []interface{}{ctx, method, args, reply}
	for _, a := range opts {
		varArgs = append(varArgs, a)
	}
	ret := m.ctrl.Call(m, "Invoke", varArgs...)
	ret0, _ := ret[0].(error)
	return ret0
}

// Invoke indicates an expected call of Invoke.
func (mr *MockInvokerMockRecorder) Invoke(ctx, method, args, reply interface{}, opts ...interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	varArgs := append([]interface{}{ctx, method, args, reply}, opts...)
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Invoke", reflect.TypeOf((*MockInvoker)(nil).Invoke), varArgs...)
}

// Close mocks base method.
func (m *MockInvoker) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call of Close.
func (mr *MockInvokerMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockInvoker)(nil).Close))
}
