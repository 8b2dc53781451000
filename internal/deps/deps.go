// Package deps checks that the external binaries ytsubs shells out to are
// installed.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"ytsubs/internal/config"
	"ytsubs/internal/services"
)

// Requirement defines an external dependency ytsubs relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// NextTo names a binary whose directory is searched before PATH.
	// Standalone yt-dlp builds look for ffmpeg beside themselves first.
	NextTo string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Command holds the resolved path for every available binary.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		default:
			if sidecar, ok := findBeside(req.NextTo, status.Command); ok {
				status.Command = sidecar
				status.Available = true
			} else if path, err := exec.LookPath(status.Command); err == nil {
				status.Command = path
				status.Available = true
			} else {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			}
		}
		results = append(results, status)
	}
	return results
}

// Check reports yt-dlp (required) and ffmpeg (optional) for cfg.
func Check(cfg *config.Config) []Status {
	binary := config.Default().YTDLP.Binary
	if cfg != nil && strings.TrimSpace(cfg.YTDLP.Binary) != "" {
		binary = cfg.YTDLP.Binary
	}
	return CheckBinaries([]Requirement{
		{
			Name:        "yt-dlp",
			Command:     binary,
			Description: "Resolves videos and downloads caption files",
		},
		{
			Name:        "FFmpeg",
			Command:     "ffmpeg",
			Description: "Used by yt-dlp to convert caption formats",
			Optional:    true,
			NextTo:      binary,
		},
	})
}

// RequireAvailable returns a configuration error naming every missing
// required dependency.
func RequireAvailable(statuses []Status) error {
	var missing []string
	for _, status := range statuses {
		if status.Optional || status.Available {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(
		services.ErrConfiguration,
		"preflight",
		"check dependencies",
		"missing required dependency: "+strings.Join(missing, ", "),
		nil,
	)
}

// findBeside looks for an executable named command in the directory of the
// resolved anchor binary.
func findBeside(anchor, command string) (string, bool) {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" || strings.ContainsRune(command, filepath.Separator) {
		return "", false
	}
	resolved, err := exec.LookPath(anchor)
	if err != nil {
		return "", false
	}
	if runtime.GOOS == "windows" && filepath.Ext(command) == "" {
		command += ".exe"
	}
	candidate := filepath.Join(filepath.Dir(resolved), command)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return candidate, true
}
