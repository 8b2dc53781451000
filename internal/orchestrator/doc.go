// Package orchestrator runs one subtitle download over a list of videos.
//
// Each video is one job on the task queue. A job fetches caption files
// through a Fetcher under the retry policy, converts every file with the
// caption parser, and writes the result into the output directory under a
// deterministic name, so repeated runs overwrite instead of accumulating
// copies. Progress lines and run statistics are owned by the run; nothing is
// shared between two runs.
package orchestrator
