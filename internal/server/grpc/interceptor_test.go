package grpc

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestServer(buf *bytes.Buffer) *HealthServer {
	return NewHealthServer("", logging.NewJSONLogger(buf, "debug"))
}

func TestInterceptor_PassesThroughResponse(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(&buf)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if !strings.Contains(buf.String(), `"method":"/grpc.health.v1.Health/Check"`) {
		t.Fatalf("method not logged: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("success should log at debug: %s", buf.String())
	}
}

func TestInterceptor_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(&buf)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", status.Code(err))
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), `"code":"NotFound"`) {
		t.Fatalf("failure not logged as warning: %s", buf.String())
	}
}
