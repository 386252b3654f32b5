package metrics

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTELProtocol identifies the OTLP transport protocol
type OTELProtocol string

const (
	// OTELProtocolGRPC exports metrics over OTLP/gRPC
	OTELProtocolGRPC OTELProtocol = "grpc"
	// OTELProtocolHTTP exports metrics over OTLP/HTTP
	OTELProtocolHTTP OTELProtocol = "http"
)

// OTELConfig carries the OTLP export settings from the config file.
type OTELConfig struct {
	Endpoint     string
	Protocol     OTELProtocol
	PushInterval time.Duration
	Insecure     bool
}

// OTELExporter periodically pushes the collector's metric families to an
// OpenTelemetry collector. It shares the family definitions with the
// Prometheus endpoint so both surfaces report the same data.
type OTELExporter struct {
	collector     *Collector
	config        OTELConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	gauges        map[string]metric.Float64Gauge // family name -> instrument
	ctx           context.Context
	cancel        context.CancelFunc
}

// createExporter creates an OTLP metric exporter for the configured protocol
func createExporter(ctx context.Context, config OTELConfig) (sdkmetric.Exporter, error) {
	switch OTELProtocol(strings.ToLower(string(config.Protocol))) {
	case OTELProtocolGRPC:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(config.Endpoint),
		}
		if config.Insecure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
			opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case OTELProtocolHTTP:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(config.Endpoint),
		}
		if config.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", config.Protocol)
	}
}

// NewOTELExporter creates a new OTEL metrics exporter. The exporter builds
// its own collector from the same providers as the HTTP endpoint.
func NewOTELExporter(ctx context.Context, infoProvider InfoProvider, deploymentUUID string, db DatabaseProvider, queue QueueProvider, collectorConfig CollectorConfig, config OTELConfig) (*OTELExporter, error) {
	collector := NewCollector(infoProvider, deploymentUUID, db, queue, collectorConfig)
	if config.PushInterval <= 0 {
		config.PushInterval = 60 * time.Second
	}

	exporter, err := createExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	version := ""
	if infoProvider != nil {
		version = infoProvider.GetVersion()
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String("ai-classifier"),
		semconv.ServiceVersionKey.String(version),
		attribute.String("deployment.name", collector.deploymentName),
		attribute.String("deployment.uuid", deploymentUUID),
	))
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(config.PushInterval))
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)

	exporterCtx, cancel := context.WithCancel(ctx)

	return &OTELExporter{
		collector:     collector,
		config:        config,
		meterProvider: meterProvider,
		meter:         meterProvider.Meter("ai-classifier"),
		gauges:        make(map[string]metric.Float64Gauge),
		ctx:           exporterCtx,
		cancel:        cancel,
	}, nil
}

// Start launches the push loop. Shutdown stops it.
func (e *OTELExporter) Start() {
	go e.pushLoop()
}

// pushLoop records one batch right away, then one per tick until
// Shutdown cancels the context.
func (e *OTELExporter) pushLoop() {
	e.recordMetrics()

	ticker := time.NewTicker(e.config.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.recordMetrics()
		case <-e.ctx.Done():
			return
		}
	}
}

// recordMetrics records the current values of all metric families
func (e *OTELExporter) recordMetrics() {
	data, err := e.collector.Collect()
	if err != nil {
		log.Printf("[otel] Failed to collect metrics: %v", err)
		return
	}

	for _, family := range data.Families {
		gauge, err := e.gauge(family)
		if err != nil {
			log.Printf("[otel] Failed to create gauge %s: %v", family.Name, err)
			continue
		}

		for _, point := range family.Metrics {
			// Staleness markers stay on the Prometheus side
			if math.IsNaN(point.Value) {
				continue
			}

			attrs := make([]attribute.KeyValue, 0, len(point.Labels))
			for k, v := range point.Labels {
				attrs = append(attrs, attribute.String(k, v))
			}
			gauge.Record(e.ctx, point.Value, metric.WithAttributes(attrs...))
		}
	}
}

// gauge returns the instrument for a metric family, creating it on first use.
// Only pushLoop touches the map, so no locking is needed.
func (e *OTELExporter) gauge(family MetricFamily) (metric.Float64Gauge, error) {
	if g, ok := e.gauges[family.Name]; ok {
		return g, nil
	}

	g, err := e.meter.Float64Gauge(family.Name,
		metric.WithDescription(family.Help),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	e.gauges[family.Name] = g
	return g, nil
}

// Shutdown stops the push loop and flushes buffered points. Calling it
// a second time is harmless.
func (e *OTELExporter) Shutdown() error {
	e.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.meterProvider.Shutdown(ctx); err != nil {
		log.Printf("[otel] Meter provider shutdown failed: %v", err)
		return err
	}
	return nil
}
