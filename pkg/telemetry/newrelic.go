package telemetry

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

// NewRelicClient wraps the New Relic agent. When disabled (no license key)
// every method is a no-op, so callers never need to branch.
type NewRelicClient struct {
	app     *newrelic.Application
	logger  logging.Logger
	appName string
	enabled bool
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewNewRelicClient creates a new New Relic client.
func NewNewRelicClient(cfg NewRelicConfig, logger logging.Logger) (*NewRelicClient, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		logger.Info("New Relic disabled or license key not provided")
		return &NewRelicClient{
			enabled: false,
			logger:  logger,
			appName: cfg.AppName,
		}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	logger.Info("New Relic client initialized", logging.NewField("app_name", cfg.AppName))

	return &NewRelicClient{
		app:     app,
		logger:  logger,
		appName: cfg.AppName,
		enabled: true,
	}, nil
}

// RecordSlowRequest records a slow request event.
func (n *NewRelicClient) RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string) {
	if !n.enabled || n.app == nil {
		return
	}

	txn := n.app.StartTransaction("slow_request")
	defer txn.End()

	txn.AddAttribute("path", path)
	txn.AddAttribute("duration_ms", durationMs)
	txn.AddAttribute("trace_id", traceID)
	txn.AddAttribute("request_id", requestID)
}

// RecordError records a failed request event.
func (n *NewRelicClient) RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string) {
	if !n.enabled || n.app == nil {
		return
	}

	txn := newrelic.FromContext(ctx)
	if txn == nil {
		txn = n.app.StartTransaction("request_error")
		defer txn.End()
	}

	txn.AddAttribute("path", path)
	txn.AddAttribute("status_code", statusCode)
	txn.AddAttribute("trace_id", traceID)
	txn.AddAttribute("request_id", requestID)
	txn.NoticeError(fmt.Errorf("%s", errorMsg))
}

// Shutdown flushes pending telemetry data.
func (n *NewRelicClient) Shutdown() {
	if n.enabled && n.app != nil {
		n.app.Shutdown(0)
	}
}
