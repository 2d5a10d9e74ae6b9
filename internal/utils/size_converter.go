package utils

import "github.com/dustin/go-humanize"

// ConvertBytesToHumanReadable renders a byte count the way run summaries and
// the --watch progress view display it (e.g. "1.2 MB").
func ConvertBytesToHumanReadable(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}
