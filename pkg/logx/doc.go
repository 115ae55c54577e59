// Package logx configures reminderd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - The log level swappable at runtime (config reload) without re-wiring services
package logx
