// Package services defines shared utilities consumed by the download
// orchestrator and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, video IDs, and stage names
//     for logging.
//   - Structured error markers plus the Wrap helper that keep the error
//     taxonomy (configuration, extraction, download, parse, file operation)
//     inspectable with errors.Is after wrapping.
//
// Use these helpers when wiring new pipeline steps so operational behaviour
// (error handling, observability) stays uniform across the run.
package services
