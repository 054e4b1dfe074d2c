package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"

	"dcollect/internal/event"
	"dcollect/internal/transport"
)

// fakeCollector is a loopback OTLP metrics service capturing exports.
// Params: requests receives every export request.
// Returns: MetricsServiceServer implementation.
type fakeCollector struct {
	colmetricspb.UnimplementedMetricsServiceServer
	requests chan *colmetricspb.ExportMetricsServiceRequest
}

// Export captures the request and acknowledges it.
// Params: ctx rpc context; req export request.
// Returns: empty success response.
func (f *fakeCollector) Export(
	_ context.Context,
	req *colmetricspb.ExportMetricsServiceRequest,
) (*colmetricspb.ExportMetricsServiceResponse, error) {
	f.requests <- req
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}

// TestGRPC_ExportsGaugeDataPoint verifies the OTLP export round trip.
// Params: testing.T for assertions.
// Returns: none.
func TestGRPC_ExportsGaugeDataPoint(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	collector := &fakeCollector{requests: make(chan *colmetricspb.ExportMetricsServiceRequest, 4)}
	srv := grpc.NewServer()
	colmetricspb.RegisterMetricsServiceServer(srv, collector)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	events := newRecorder()
	tr := transport.NewGRPC(lis.Addr().String(), 2*time.Second)

	conn, err := tr.Dial(context.Background(), events)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	await(t, events.connected, "connect callback")

	sent := event.Event{
		Origin:    "db1",
		Type:      "memory_percent",
		Value:     63.2,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]any{"env": "test", "rack": 12},
	}
	if err := conn.Send(context.Background(), sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	var req *colmetricspb.ExportMetricsServiceRequest
	select {
	case req = <-collector.requests:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for export request")
	}

	rms := req.GetResourceMetrics()
	if len(rms) != 1 {
		t.Fatalf("unexpected resource metrics count: %d", len(rms))
	}

	originFound := false
	for _, attr := range rms[0].GetResource().GetAttributes() {
		if attr.GetKey() == "origin" && attr.GetValue().GetStringValue() == "db1" {
			originFound = true
		}
	}
	if !originFound {
		t.Fatalf("expected origin resource attribute")
	}

	metrics := rms[0].GetScopeMetrics()[0].GetMetrics()
	if len(metrics) != 1 || metrics[0].GetName() != "memory_percent" {
		t.Fatalf("unexpected metrics payload: %v", metrics)
	}
	points := metrics[0].GetGauge().GetDataPoints()
	if len(points) != 1 {
		t.Fatalf("unexpected data point count: %d", len(points))
	}
	if got := points[0].GetAsDouble(); got != 63.2 {
		t.Fatalf("unexpected gauge value: %v", got)
	}
	if len(points[0].GetAttributes()) != 2 {
		t.Fatalf("unexpected metadata attribute count: %d", len(points[0].GetAttributes()))
	}

	if err := conn.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// TestGRPC_DialFailsFast verifies dial timeout against a dead endpoint.
// Params: testing.T for assertions.
// Returns: none.
func TestGRPC_DialFailsFast(t *testing.T) {
	events := newRecorder()
	tr := transport.NewGRPC("127.0.0.1:1", 500*time.Millisecond)

	if _, err := tr.Dial(context.Background(), events); err == nil {
		t.Fatalf("expected dial error for dead endpoint")
	}
}
