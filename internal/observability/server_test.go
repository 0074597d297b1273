package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-screening-call-service/internal/observability/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Endpoints(t *testing.T) {
	s := NewServer(":0")

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ai_screening_call_sessions_active"))
}

func TestServer_ReadinessCheckFails(t *testing.T) {
	s := NewServer(":0")
	s.AddReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	rec := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

type fakeServerStream struct {
	grpc.ServerStream
}

func (fakeServerStream) Context() context.Context { return context.Background() }

func TestInterceptors_PassThrough(t *testing.T) {
	unary := UnaryServerInterceptor()
	resp, err := unary(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "resp", nil })
	assert.NoError(t, err)
	assert.Equal(t, "resp", resp)

	stream := StreamServerInterceptor(metrics.DefaultMetrics)
	want := status.Error(codes.Unavailable, "draining")
	err = stream(nil, fakeServerStream{}, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"},
		func(srv interface{}, ss grpc.ServerStream) error { return want })
	assert.Equal(t, want, err)
}

func TestInterceptors_RecoverPanics(t *testing.T) {
	unary := UnaryServerInterceptor()
	resp, err := unary(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/svc/Boom"},
		func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") })
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))

	stream := StreamServerInterceptor(metrics.DefaultMetrics)
	err = stream(nil, fakeServerStream{}, &grpc.StreamServerInfo{FullMethod: "/svc/BoomStream"},
		func(srv interface{}, ss grpc.ServerStream) error { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
