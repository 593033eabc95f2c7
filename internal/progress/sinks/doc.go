// Package sinks holds the progress consumers used by a check run: a zap
// logger for console reporting and Prometheus collectors for the metrics
// textfile.
package sinks
