// Package retry wraps fallible operations with bounded exponential backoff.
//
// Retryability is decided by Classify. Errors raised at the yt-dlp boundary
// carry an explicit *Error with a closed Class; anything else falls back to
// ClassifyMessage, which matches the free-text failure messages printed by
// external tools. Unrecognized failures are not retried.
package retry
