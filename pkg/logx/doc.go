// Package logx configures the scheduler's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, so the daemon can run unattended under systemd
//   - Runtime level/sink changes through Service.Apply (config hot reload)
package logx
