// Package logx configures the monitor's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - JSON output available for machine ingestion (format: json)
//   - Optional file sink, always JSON-structured
package logx
