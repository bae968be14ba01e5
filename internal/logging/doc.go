// Package logging provides structured logging for jab.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (invocation ID, project)
//   - Credential redaction for database URIs
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithInvocationID(ctx, uuid.NewString())
//	ctx = logging.WithProject(ctx, "shop")
//	logger.Info(ctx, "dump committed", zap.String("hash", h))
//
// Database URIs carry passwords. Always log them through DBURI:
//
//	logger.Debug(ctx, "dumping", logging.DBURI("db_uri", uri))
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// Logs are written to stderr so command output on stdout (such as a raw dump
// from "jab project show") stays clean. The default console format prints
// one short line per entry; set log.format to json when a collector reads
// stderr.
package logging
