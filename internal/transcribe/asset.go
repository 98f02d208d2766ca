// Package transcribe plans and runs transcription jobs for uploaded media.
//
// The selector is a pure function from asset metadata to a plan: which
// backend (sync or long-running) handles the asset and whether the audio is
// normalized first. The runner then walks the job's language hint list
// against that backend, advancing to the next hint on a no-speech result,
// until a transcript is produced or the hints are exhausted.
package transcribe

import (
	"strings"
	"time"
)

// MediaAsset is an immutable reference to one uploaded binary. Created from
// the inbound attachment event, discarded once the job terminates.
type MediaAsset struct {
	// URL is where the bytes can be fetched from.
	URL string

	// Filename is the declared attachment name.
	Filename string

	// MIMEType is the declared content type, possibly with parameters.
	MIMEType string

	// SizeBytes is the declared size.
	SizeBytes int64

	// Duration is the estimated media duration. Zero means unknown; probing
	// may be too expensive before the bytes are fetched.
	Duration time.Duration
}

// IsMedia reports whether the asset is a transcription candidate at all.
func (a MediaAsset) IsMedia() bool {
	mime := strings.ToLower(a.MIMEType)
	return strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/")
}

// compressedExtensions are container formats whose byte size understates the
// decoded audio length by roughly an order of magnitude.
var compressedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".webm": true,
	".mp4":  true,
	".mov":  true,
	".wma":  true,
}

// IsCompressed reports whether the filename carries a compressed container
// extension.
func (a MediaAsset) IsCompressed() bool {
	name := strings.ToLower(a.Filename)
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	return compressedExtensions[name[i:]]
}
