// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - optional size-rotated file output through lumberjack,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities.
//
// All services accept a context and extract the logger from it, enabling
// scoped, structured logging throughout the daemon.
package logger
