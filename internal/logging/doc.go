// Package logging provides structured logging with OpenTelemetry integration.
//
// Logging wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - output to stderr and/or OpenTelemetry
//   - context field injection (trace_id, task.id, sentence.id, request.id)
//   - per-level sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = task.WithTask(ctx, t)
//	logger.Info(ctx, "sentence translated", zap.Int("options", n))
//
// Output carries the sentence correlation:
//
//	{"level":"info","ts":"2026-01-12T10:15:30Z","msg":"sentence translated",
//	 "task.id":"0b8e...","sentence.id":7,"options":12}
//
// Dictionaries take a plain *zap.Logger; pass Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
