// Package progress streams ingestion milestones from the coordinator to
// pluggable sinks. Events are buffered and batched on a background goroutine so
// region units never block on logging or metrics.
package progress
