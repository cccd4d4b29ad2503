// Package format infers the audio container format from client-supplied hints
// so the storage layer can persist the payload with a suffix the engine's
// demuxer understands.
package format

import (
	"path/filepath"
	"strings"
)

type Format string

const (
	WAV  Format = "wav"
	WebM Format = "webm"
	MP3  Format = "mp3"
	M4A  Format = "m4a"
	OGG  Format = "ogg"
	FLAC Format = "flac"
)

// Suffix returns the on-disk file suffix for the format, including the dot.
func (f Format) Suffix() string {
	return "." + string(f)
}

var supported = []Format{WAV, WebM, MP3, M4A, OGG, FLAC}

// Sniff resolves a concrete format from a declared content type and an
// optional filename. The filename extension, when present and supported, is
// the most reliable hint; the content type is client-controlled and may be
// generic, so it is only consulted second. Unrecognized input defaults to WAV
// because that is what callers most commonly send.
func Sniff(contentType, filename string) Format {
	if filename != "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
		for _, f := range supported {
			if ext == string(f) {
				return f
			}
		}
	}

	ct := strings.ToLower(contentType)
	if ct != "" {
		for _, f := range supported {
			if strings.Contains(ct, string(f)) {
				return f
			}
		}
		if strings.Contains(ct, "mpeg") {
			return MP3
		}
	}

	return WAV
}
