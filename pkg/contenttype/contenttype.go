// Package contenttype maps tour file extensions to the Content-Type stored
// with each published object.
package contenttype

import (
	"path"
	"strings"
)

// Default is used for unknown or missing extensions.
const Default = "application/octet-stream"

var byExtension = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".xml":   "application/xml",
	".txt":   "text/plain",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
}

// Classify returns the content type for p by its lowercased extension.
func Classify(p string) string {
	if ct, ok := byExtension[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return Default
}

// Known lists every extension in the table.
func Known() map[string]string {
	out := make(map[string]string, len(byExtension))
	for k, v := range byExtension {
		out[k] = v
	}
	return out
}
