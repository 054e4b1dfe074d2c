package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"dcollect/internal/event"
)

// GRPC dials persistent OTLP metrics connections to the collector.
// Params: endpoint host:port and per-operation timeout.
// Returns: Transport implementation.
type GRPC struct {
	endpoint string
	timeout  time.Duration
}

// NewGRPC creates the gRPC transport.
// Params: endpoint destination host:port; timeout bounds dial and each export.
// Returns: configured transport.
func NewGRPC(endpoint string, timeout time.Duration) *GRPC {
	return &GRPC{endpoint: endpoint, timeout: timeout}
}

// Dial establishes a blocking gRPC connection and starts the state watcher.
// Params: ctx bounds the dial; events receives connection callbacks.
// Returns: established connection or dial error.
func (t *GRPC) Dial(ctx context.Context, events Events) (Conn, error) {
	dialCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(
		dialCtx,
		t.endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.endpoint, err)
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	conn := &grpcConn{
		cc:          cc,
		client:      colmetricspb.NewMetricsServiceClient(cc),
		timeout:     t.timeout,
		events:      events,
		watchCancel: watchCancel,
	}
	go conn.watchState(watchCtx)

	events.HandleConnect()
	return conn, nil
}

// grpcConn is one established gRPC link exporting OTLP metrics.
type grpcConn struct {
	cc          *grpc.ClientConn
	client      colmetricspb.MetricsServiceClient
	timeout     time.Duration
	events      Events
	watchCancel context.CancelFunc
	closing     atomic.Bool
}

// Send exports one event as an OTLP gauge data point.
// Params: ctx bounds the export; ev event to encode.
// Returns: export error; partial-success responses surface as error messages.
func (c *grpcConn) Send(ctx context.Context, ev event.Event) error {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Export(callCtx, encodeExportRequest(ev))
	if err != nil {
		return fmt.Errorf("export metric %q: %w", ev.Type, err)
	}

	if partial := resp.GetPartialSuccess(); partial != nil && partial.GetRejectedDataPoints() > 0 {
		c.events.HandleMessage("error", []byte(partial.GetErrorMessage()))
	}
	return nil
}

// Close stops the state watcher and tears the client connection down.
// Params: ctx unused; grpc close is immediate.
// Returns: close error from the client connection.
func (c *grpcConn) Close(_ context.Context) error {
	c.closing.Store(true)
	c.watchCancel()

	if err := c.cc.Close(); err != nil {
		return fmt.Errorf("close grpc connection: %w", err)
	}
	return nil
}

// watchState surfaces connectivity drops through the events callback.
// Params: ctx stops the watcher on Close.
// Returns: none.
func (c *grpcConn) watchState(ctx context.Context) {
	state := c.cc.GetState()
	for {
		if !c.cc.WaitForStateChange(ctx, state) {
			return
		}
		state = c.cc.GetState()

		switch state {
		case connectivity.TransientFailure:
			if !c.closing.Load() {
				c.events.HandleDisconnect(fmt.Errorf("grpc connection entered %s", state))
			}
			return
		case connectivity.Shutdown:
			if !c.closing.Load() {
				c.events.HandleDisconnect(nil)
			}
			return
		default:
		}
	}
}

// encodeExportRequest builds an OTLP export request carrying one gauge point.
// Params: ev normalized event.
// Returns: export request with origin resource and metadata attributes.
func encodeExportRequest(ev event.Event) *colmetricspb.ExportMetricsServiceRequest {
	point := &metricspb.NumberDataPoint{
		TimeUnixNano: uint64(ev.Timestamp.UnixNano()),
		Attributes:   encodeAttributes(ev.Metadata),
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: ev.Value},
	}

	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						{
							Key:   "origin",
							Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: ev.Origin}},
						},
					},
				},
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Metrics: []*metricspb.Metric{
							{
								Name: ev.Type,
								Data: &metricspb.Metric_Gauge{
									Gauge: &metricspb.Gauge{
										DataPoints: []*metricspb.NumberDataPoint{point},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// encodeAttributes converts scalar metadata into OTLP attributes.
// Params: metadata scalar-only map.
// Returns: attribute list; non-scalar values are skipped.
func encodeAttributes(metadata map[string]any) []*commonpb.KeyValue {
	if len(metadata) == 0 {
		return nil
	}

	attrs := make([]*commonpb.KeyValue, 0, len(metadata))
	for key, value := range metadata {
		encoded, ok := encodeAnyValue(value)
		if !ok {
			continue
		}
		attrs = append(attrs, &commonpb.KeyValue{Key: key, Value: encoded})
	}
	return attrs
}

// encodeAnyValue converts one scalar into an OTLP value.
// Params: value metadata scalar.
// Returns: encoded value and false for unsupported types.
func encodeAnyValue(value any) (*commonpb.AnyValue, bool) {
	switch typed := value.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: typed}}, true
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: typed}}, true
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case int8:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case int16:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case int32:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: typed}}, true
	case uint:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case uint8:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case uint16:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case uint32:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case uint64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(typed)}}, true
	case float32:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: float64(typed)}}, true
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: typed}}, true
	default:
		return nil, false
	}
}
