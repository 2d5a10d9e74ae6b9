package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// SniffMIME magic-byte-sniffs a leading chunk of file content, independent of
// any Content-Type a server or caller claims. Used by the CLI's post-download
// history sniff; it wraps the same filetype.Match detector DetermineFilename
// uses for extension inference, so the run's recorded MIME type and the
// extension chunkmux picked for it come from the same detector. Returns ""
// when the type is unrecognized.
func SniffMIME(header []byte) string {
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// DetermineFilename extracts the filename from a URL and HTTP response,
// applying various heuristics. It returns the determined filename,
// a new io.Reader that includes any sniffed header bytes, and an error.
func DetermineFilename(rawurl string, resp *http.Response, verbose bool) (string, io.Reader, error) {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return "", nil, err
	}

	// Changing flow to determine candidate filename first

	var candidate string

	// 1. Content-Disposition
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		candidate = name
		if verbose {
			Debug("filename from Content-Disposition: %s", candidate)
		}
	}

	// 2. Query Parameters (if no Content-Disposition)
	if candidate == "" {
		q := parsed.Query()
		if name := q.Get("filename"); name != "" {
			candidate = name
			if verbose {
				Debug("filename from query param 'filename': %s", candidate)
			}
		} else if name := q.Get("file"); name != "" {
			candidate = name
			if verbose {
				Debug("filename from query param 'file': %s", candidate)
			}
		}
	}

	// 3. URL Path
	if candidate == "" {
		candidate = filepath.Base(parsed.Path)
	}

	filename := sanitizeFilename(candidate)

	header := make([]byte, 512)
	n, rerr := io.ReadFull(resp.Body, header)
	if rerr != nil {
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			header = header[:n]
		} else {
			return "", nil, fmt.Errorf("reading header: %w", rerr)
		}
	} else {
		header = header[:n]
	}

	body := io.MultiReader(bytes.NewReader(header), resp.Body)

	kind, _ := filetype.Match(header)

	if verbose {
		Debug("content-type sniff: declared=%s magic=%s (%s)", http.DetectContentType(header), kind.Extension, kind.MIME.Value)
	}

	if candidate == "." && len(header) >= 4 && bytes.HasPrefix(header, []byte{0x50, 0x4B, 0x03, 0x04}) && len(header) >= 30 {
		nameLen := int(binary.LittleEndian.Uint16(header[26:28]))
		start := 30
		end := start + nameLen
		if end <= len(header) {
			zipName := string(header[start:end])
			if zipName != "" {
				filename = filepath.Base(zipName)
				if verbose {
					Debug("zip internal filename: %s", zipName)
				}
			}
		}
	}

	if filepath.Ext(filename) == "" && kind != filetype.Unknown && kind.Extension != "" {
		filename = filename + "." + kind.Extension
		if verbose {
			Debug("added extension from magic type: %s", kind.Extension)
		}
	}

	if filename == "" || filename == "." || filename == "/" {
		filename = "download.bin"
		if verbose {
			Debug("falling back to default filename: download.bin")
		}
	}

	return filename, body, nil
}

func sanitizeFilename(name string) string {
	// Replace backslashes with forward slashes first so filepath.Base treats them as separators
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." {
		return name
	}
	if name == "/" || name == "\\" {
		return "_"
	}
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	// Additional standard replacements for windows/linux safety
	name = strings.ReplaceAll(name, ":", "_")
	name = strings.ReplaceAll(name, "*", "_")
	name = strings.ReplaceAll(name, "?", "_")
	name = strings.ReplaceAll(name, "\"", "_")
	name = strings.ReplaceAll(name, "<", "_")
	name = strings.ReplaceAll(name, ">", "_")
	name = strings.ReplaceAll(name, "|", "_")
	return name
}
