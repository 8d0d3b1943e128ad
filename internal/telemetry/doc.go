// Package telemetry provides structured logging and metrics for flowsim.
//
//   - logging.go: slog setup (tint for terminals, JSON otherwise) and
//     context propagation of the logger
//   - metrics.go: Prometheus counters and histograms for validations,
//     simulations and expression errors
package telemetry
