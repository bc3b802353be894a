// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// The level is atomic and can be changed while the service runs.
//
// Example Usage:
//
//	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Server starting", zap.String("addr", cfg.Addr()))
//	tree := inspector.NewTree(backend).WithLogger(logger.Named("tree"))
package logging
