// Package telemetry provides observability instrumentation for nodekeeper.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind a single handle that
// travels on the context.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("manager")
//	logger = logger.WithPackage("comfy-pack").WithOperation("install")
//	logger.Info("Installing package")
//	logger.WithError(err).Error("Install failed")
//
// # Distributed Tracing
//
// Spans cover each package operation end to end:
//
//	ctx, span := tel.Tracer.StartOperationSpan(ctx, "install", name)
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP/gRPC (production), stdout (development),
// none (testing).
//
// # Metrics
//
// Key metrics exposed at the /metrics endpoint:
//
//   - nodekeeper_operations_total{operation,status}
//   - nodekeeper_operation_duration_seconds{operation}
//   - nodekeeper_registry_requests_total{kind,status}
//   - nodekeeper_registry_cache_lookups_total{result}
//   - nodekeeper_errors_by_class_total{class}
//   - nodekeeper_errors_by_code_total{code}
//   - nodekeeper_installed_packages{kind,location}
//   - nodekeeper_corrupt_copies
//
// # Context Helpers
//
// StartOperation bundles span, logger and timer for one operation:
//
//	ic := telemetry.StartOperation(ctx, "package.install",
//	    telemetry.AttrPackage.String(name))
//	defer func() { ic.End(err) }()
//
//	ic.Logger.Info("Installing package")
package telemetry
