// Package observability provides structured logging, Prometheus metrics,
// health probes and graceful-shutdown plumbing shared by all Caselane
// services.
package observability
