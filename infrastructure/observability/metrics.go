package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"insightquest/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsProvider records session core measurements with OpenTelemetry
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	loginsCounter         metric.Int64Counter
	xpAwardedCounter      metric.Int64Counter
	levelUpsCounter       metric.Int64Counter
	balanceFetchesCounter metric.Int64Counter
	balanceFetchHist      metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the exporter named by the config
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		return mp.initialize(nil)
	}

	var exporter sdkmetric.Exporter
	var err error
	switch mp.config.OTelExporterType {
	case ExporterConsole:
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case ExporterOTLP:
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case ExporterNone:
		log.Info("Metrics export disabled (exporter_type='none')")
		return mp.initialize(nil)

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	interval := time.Duration(mp.config.OTelExportIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	return mp.initialize(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
}

// InitializeWithReader sets up the provider on an explicit reader
func (mp *MetricsProvider) InitializeWithReader(reader sdkmetric.Reader) error {
	return mp.initialize(reader)
}

func (mp *MetricsProvider) initialize(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if reader == nil {
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("insightquest")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.loginsCounter, err = mp.meter.Int64Counter(
		LoginsTotal,
		metric.WithDescription("Total number of established sessions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create logins counter: %w", err)
	}

	mp.xpAwardedCounter, err = mp.meter.Int64Counter(
		XPAwardedTotal,
		metric.WithDescription("Total experience points awarded, daily rewards included"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create xp awarded counter: %w", err)
	}

	mp.levelUpsCounter, err = mp.meter.Int64Counter(
		LevelUpsTotal,
		metric.WithDescription("Total number of persisted level ups"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create level ups counter: %w", err)
	}

	mp.balanceFetchesCounter, err = mp.meter.Int64Counter(
		BalanceFetchesTotal,
		metric.WithDescription("Total number of ledger balance fetches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance fetches counter: %w", err)
	}

	mp.balanceFetchHist, err = mp.meter.Float64Histogram(
		BalanceFetchDuration,
		metric.WithDescription("Duration of ledger balance fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance fetch duration histogram: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordLogin records an established session and its daily reward
func (mp *MetricsProvider) RecordLogin(restored bool, reward int64) {
	if !mp.isEnabled() {
		return
	}

	mp.loginsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.Bool(LabelRestored, restored),
			attribute.Bool(LabelRewarded, reward > 0),
		),
	)
	if reward > 0 {
		mp.xpAwardedCounter.Add(context.Background(), reward)
	}
}

// RecordXPAwarded records an explicit xp award
func (mp *MetricsProvider) RecordXPAwarded(amount int64) {
	if !mp.isEnabled() {
		return
	}

	mp.xpAwardedCounter.Add(context.Background(), amount)
}

// RecordLevelUp records a persisted level change
func (mp *MetricsProvider) RecordLevelUp(level int) {
	if !mp.isEnabled() {
		return
	}

	mp.levelUpsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelLevel, strconv.Itoa(level)),
		),
	)
}

// RecordBalanceFetch records one ledger fetch by outcome
func (mp *MetricsProvider) RecordBalanceFetch(outcome string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelOutcome, outcome),
	)

	mp.balanceFetchesCounter.Add(context.Background(), 1, attrs)
	mp.balanceFetchHist.Record(context.Background(), duration.Seconds(), attrs)
}

// isEnabled checks if metrics are initialized with a reader
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}
