// Command ytsubs downloads YouTube subtitles for videos, playlists, and
// channels and converts them to plain text or timestamped JSON.
//
// Subcommands:
//
//	download   fetch and convert subtitles for one or more URLs
//	history    list past runs and their per-video outcomes
//	doctor     check that yt-dlp (and optionally ffmpeg) are installed
//	config     init, show, or validate the configuration file
package main
