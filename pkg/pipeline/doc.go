// Package pipeline runs the completeness computation end to end:
//
//	payloads ─▶ table.Parser ─▶ table.Merge ─▶ normalize ─▶ attendance.Aggregate ─▶ report
//
// The pipeline is stateless. It takes already-downloaded payloads keyed
// by node id and never touches the network or credentials. Everything a
// stage drops is counted in Diagnostics, logged once per run and, when a
// Metrics is configured, exported to Prometheus.
//
// When no payload yields a usable sample, Run returns ErrNoData.
package pipeline
