package upload

import (
	"mime"
	"strings"
)

// extensionsByType maps media types to the extension given to uploads
// whose name has none.
var extensionsByType = map[string]string{
	// images
	"image/jpeg":               ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/svg+xml":            ".svg",
	"image/tiff":               ".tiff",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/heic":               ".heic",
	"image/heif":               ".heif",
	"image/avif":               ".avif",

	// video
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-matroska": ".mkv",
	"video/mpeg":       ".mpeg",
	"video/ogg":        ".ogv",
	"video/3gpp":       ".3gp",

	// audio
	"audio/mpeg":   ".mp3",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/ogg":    ".ogg",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/aac":    ".aac",
	"audio/webm":   ".weba",
	"audio/midi":   ".mid",

	// documents
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.oasis.opendocument.text":                                   ".odt",
	"application/vnd.oasis.opendocument.spreadsheet":                            ".ods",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
	"application/rtf":      ".rtf",
	"application/epub+zip": ".epub",

	// archives
	"application/zip":              ".zip",
	"application/x-zip-compressed": ".zip",
	"application/gzip":             ".gz",
	"application/x-gzip":           ".gz",
	"application/x-tar":            ".tar",
	"application/x-7z-compressed":  ".7z",
	"application/vnd.rar":          ".rar",
	"application/x-rar-compressed": ".rar",
	"application/x-bzip2":          ".bz2",
	"application/x-xz":             ".xz",
	"application/zstd":             ".zst",

	// text
	"text/plain":                ".txt",
	"text/csv":                  ".csv",
	"text/html":                 ".html",
	"text/css":                  ".css",
	"text/markdown":             ".md",
	"text/xml":                  ".xml",
	"text/calendar":             ".ics",
	"text/tab-separated-values": ".tsv",

	// fonts
	"font/ttf":                      ".ttf",
	"font/otf":                      ".otf",
	"font/woff":                     ".woff",
	"font/woff2":                    ".woff2",
	"application/vnd.ms-fontobject": ".eot",

	// code and data
	"application/json":       ".json",
	"application/xml":        ".xml",
	"application/javascript": ".js",
	"text/javascript":        ".js",
	"application/x-yaml":     ".yaml",
	"application/yaml":       ".yaml",
	"application/toml":       ".toml",
	"application/x-sh":       ".sh",
	"text/x-python":          ".py",
	"text/x-go":              ".go",
	"application/sql":        ".sql",
	"application/wasm":       ".wasm",
}

// ExtensionForType returns the extension for a Content-Type value, or ""
// when the type is unknown. Parameters such as charset are ignored.
func ExtensionForType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return extensionsByType[mediaType]
}
