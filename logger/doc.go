// Package logger builds the application's zap logger.
//
// Production mode emits JSON with an ISO8601 "timestamp" and a "service"
// field; development mode emits colored console lines. Both write to stderr
// so that the stdio MCP transport can own stdout.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    return err
//	}
//	log.Info("execution finished", zap.String("execution_id", id))
package logger
