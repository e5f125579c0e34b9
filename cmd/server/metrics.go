package main

import (
	"fmt"
	"io"

	"endlessterrain.io/internal/persistence/indexdb"
	"endlessterrain.io/internal/sim/stream"
)

type metrics struct {
	Stream           stream.Stats
	Index            *indexdb.Stats
	Sessions         int
	EventLogs        uint64
	EventLogFailures uint64
}

// writeMetrics renders m in the Prometheus text exposition format.
func writeMetrics(w io.Writer, m metrics) {
	run := m.Stream.RunID

	fmt.Fprintf(w, "# HELP endlessterrain_stream_tick Current streamer tick.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_stream_tick gauge\n")
	fmt.Fprintf(w, "endlessterrain_stream_tick{run=%q} %d\n", run, m.Stream.Tick)

	fmt.Fprintf(w, "# HELP endlessterrain_stream_sweeps_total Visibility sweeps run.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_stream_sweeps_total counter\n")
	fmt.Fprintf(w, "endlessterrain_stream_sweeps_total{run=%q} %d\n", run, m.Stream.Sweeps)

	fmt.Fprintf(w, "# HELP endlessterrain_stream_chunks Registered chunk count.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_stream_chunks gauge\n")
	fmt.Fprintf(w, "endlessterrain_stream_chunks{run=%q,state=%q} %d\n", run, "registered", m.Stream.Chunks)
	fmt.Fprintf(w, "endlessterrain_stream_chunks{run=%q,state=%q} %d\n", run, "visible", m.Stream.Visible)

	fmt.Fprintf(w, "# HELP endlessterrain_jobs_total Background jobs by outcome.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_jobs_total counter\n")
	fmt.Fprintf(w, "endlessterrain_jobs_total{run=%q,state=%q} %d\n", run, "submitted", m.Stream.Jobs.Submitted)
	fmt.Fprintf(w, "endlessterrain_jobs_total{run=%q,state=%q} %d\n", run, "completed", m.Stream.Jobs.Completed)
	fmt.Fprintf(w, "endlessterrain_jobs_total{run=%q,state=%q} %d\n", run, "failed", m.Stream.Jobs.Failed)

	fmt.Fprintf(w, "# HELP endlessterrain_jobs_pending Jobs submitted but not yet finished.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_jobs_pending gauge\n")
	fmt.Fprintf(w, "endlessterrain_jobs_pending{run=%q} %d\n", run, m.Stream.Jobs.Pending)

	fmt.Fprintf(w, "# HELP endlessterrain_result_queue_depth Finished jobs waiting for the consumer.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_result_queue_depth gauge\n")
	fmt.Fprintf(w, "endlessterrain_result_queue_depth{run=%q} %d\n", run, m.Stream.Jobs.Queued)

	fmt.Fprintf(w, "# HELP endlessterrain_observer_sessions Connected observer sessions.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_observer_sessions gauge\n")
	fmt.Fprintf(w, "endlessterrain_observer_sessions{run=%q} %d\n", run, m.Sessions)

	fmt.Fprintf(w, "# HELP endlessterrain_event_log_lines_total Events written to the event log.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_event_log_lines_total counter\n")
	fmt.Fprintf(w, "endlessterrain_event_log_lines_total{run=%q} %d\n", run, m.EventLogs)
	fmt.Fprintf(w, "endlessterrain_event_log_failures_total{run=%q} %d\n", run, m.EventLogFailures)

	if m.Index == nil {
		return
	}
	fmt.Fprintf(w, "# HELP endlessterrain_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_index_queue_depth gauge\n")
	fmt.Fprintf(w, "endlessterrain_index_queue_depth{run=%q} %d\n", run, m.Index.QueueDepth)
	fmt.Fprintf(w, "endlessterrain_index_queue_capacity{run=%q} %d\n", run, m.Index.QueueCapacity)

	fmt.Fprintf(w, "# HELP endlessterrain_index_drop_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_index_drop_total counter\n")
	fmt.Fprintf(w, "endlessterrain_index_drop_total{run=%q,kind=%q} %d\n", run, "event", m.Index.DropEventTotal)
	fmt.Fprintf(w, "endlessterrain_index_drop_total{run=%q,kind=%q} %d\n", run, "sweep", m.Index.DropSweepTotal)

	fmt.Fprintf(w, "# HELP endlessterrain_index_write_total Index writes by outcome.\n")
	fmt.Fprintf(w, "# TYPE endlessterrain_index_write_total counter\n")
	fmt.Fprintf(w, "endlessterrain_index_write_total{run=%q,state=%q} %d\n", run, "ok", m.Index.WrittenTotal)
	fmt.Fprintf(w, "endlessterrain_index_write_total{run=%q,state=%q} %d\n", run, "failed", m.Index.WriteFailTotal)
}
