/*
Package metrics records how bootstrap runs went so node-level monitoring can
alert on failed or slow provisioning.

There is no long-running process to scrape, so collectors live in a private
Registry that is flushed with WriteTextfile into the directory read by the
node exporter's textfile collector:

	timer := metrics.NewTimer()
	// ... run a step
	timer.ObserveStep("run", "write-config")
	metrics.RecordRun("run", err)
	_ = metrics.WriteTextfile("/var/lib/node_exporter/textfile/nomad_bootstrap.prom")

Exported series:

	nomad_bootstrap_step_duration_seconds{command,step}
	nomad_bootstrap_retry_attempts_total{result}
	nomad_bootstrap_runs_total{command,outcome}
	nomad_bootstrap_last_run_timestamp_seconds{command}
*/
package metrics
