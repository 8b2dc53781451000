// Package captions parses WebVTT and SRT caption files into an ordered list of
// cleaned cues and renders them as plain text or timestamped JSON.
//
// Inline timing markers and voice/style tags are stripped, whitespace is
// collapsed, and a cue whose text repeats the previous kept cue is dropped so
// rolling auto-generated captions read as continuous text.
package captions
