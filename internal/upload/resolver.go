package upload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// PlaceholderName replaces names that sanitize to nothing.
	PlaceholderName = "file"

	maxNameLength = 200
	maxExtLength  = 16

	// maxDisambiguator bounds the (n) search; past it a random suffix is used.
	maxDisambiguator = 100000
)

// Resolver turns client-supplied names into safe names that are free in
// the storage directory at the time of the call.
type Resolver struct {
	exists func(name string) bool
}

func NewResolver(exists func(name string) bool) *Resolver {
	return &Resolver{exists: exists}
}

// Resolve sanitizes requested and appends the lowest (n) disambiguator
// that makes it unique. The result is not reserved.
func (r *Resolver) Resolve(requested, contentType string) string {
	return r.disambiguate(Sanitize(requested, contentType))
}

func (r *Resolver) disambiguate(name string) string {
	if !r.exists(name) {
		return name
	}
	base, ext := splitExt(name)
	for n := 1; n <= maxDisambiguator; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		if !r.exists(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s-%s%s", base, uuid.NewString(), ext)
}

// Sanitize reduces requested to a bare file name made of [A-Za-z0-9.-_].
// Path components are dropped, other characters become '_', leading dots
// are replaced so the result is never hidden, and an extension is taken
// from contentType when the name has none.
func Sanitize(requested, contentType string) string {
	if i := strings.LastIndexAny(requested, `/\`); i >= 0 {
		requested = requested[i+1:]
	}

	var b strings.Builder
	b.Grow(len(requested))
	for _, r := range requested {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()

	if trimmed := strings.TrimLeft(name, "."); len(trimmed) < len(name) {
		name = strings.Repeat("_", len(name)-len(trimmed)) + trimmed
	}
	if name == "" {
		name = PlaceholderName
	}

	if _, ext := splitExt(name); ext == "" && contentType != "" {
		if typeExt := ExtensionForType(contentType); typeExt != "" {
			name = strings.TrimRight(name, ".") + typeExt
		}
	}
	return truncate(name)
}

func isSafeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-'
}

// splitExt splits name into base and extension; a lone trailing dot is
// not an extension.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == "." || ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

func truncate(name string) string {
	if len(name) <= maxNameLength {
		return name
	}
	base, ext := splitExt(name)
	if len(ext) > maxExtLength {
		base, ext = name, ""
	}
	return base[:maxNameLength-len(ext)] + ext
}
