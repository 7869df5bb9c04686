// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// Export is off by default. When enabled, spans and metrics go to an OTLP
// collector over gRPC or HTTP:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling:
//	    rate: 0.1
//	  metrics:
//	    export-interval: 15s
//
// The engine records the spans engine.translate, group.lookup and
// suffixarray.load. Telemetry failures degrade to no-op providers and never
// fail a translation.
//
// Tests use NewTestTelemetry and hand its Tracer and Meter to the code
// under test:
//
//	tt := telemetry.NewTestTelemetry()
//	g, _ := group.New(cfg, set, w, logger, group.WithTracer(tt.Tracer("test")))
//	...
//	tt.AssertSpanExists(t, "group.lookup")
package telemetry
