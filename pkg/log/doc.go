/*
Package log provides structured logging for nomad-bootstrap using zerolog.

A single package-level Logger is configured once by the command layer via
Init. Output defaults to stderr in console format with RFC3339 timestamps,
so every message a run prints is leveled and timestamped while stdout is
left free for documents printed by the render command. JSON output is
available for hosts that ship logs to a collector.

Component loggers tag every line with the stage that produced it:

	installLog := log.WithStep("install", "fetch")
	installLog.Warn().Int("attempt", 2).Msg("download failed, retrying")

	log.Logger.Error().Err(err).Msg("bootstrap failed")
*/
package log
