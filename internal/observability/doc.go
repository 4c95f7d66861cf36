// Package observability holds the logging and metrics plumbing for
// getpapers: a zerolog logger factory and a Prometheus registry that can be
// dumped to a node-exporter textfile at the end of a run.
package observability
