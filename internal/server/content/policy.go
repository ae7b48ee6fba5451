package content

import (
	"mime"
	"path"
	"strings"
)

const defaultMime = "text/plain"

// Extensions the system mime table is unreliable about.
var knownTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".org":      "text/org",
	".rst":      "text/x-rst",
	".tex":      "text/x-tex",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".csv":      "text/csv",
	".js":       "text/javascript",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".sh":       "text/x-shellscript",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".svg":      "image/svg+xml",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".pdf":      "application/pdf",
}

// InferMime returns the media type for a path from its extension, falling
// back to text/plain.
func InferMime(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return defaultMime
	}
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return essence(t)
	}
	return defaultMime
}

// essence strips parameters and lower-cases a media type.
func essence(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

// Policy decides which media types may be written. The text/* family is
// always allowed.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy returns a policy that additionally allows the given types.
func NewPolicy(allowed []string) Policy {
	p := Policy{allowed: make(map[string]struct{}, len(allowed))}
	for _, t := range allowed {
		if t = essence(t); t != "" {
			p.allowed[t] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether t may be stored.
func (p Policy) Allowed(t string) bool {
	t = essence(t)
	if strings.HasPrefix(t, "text/") {
		return true
	}
	_, ok := p.allowed[t]
	return ok
}

// CleanPath validates a repository-relative page path and returns it in
// canonical slash form.
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", invalid("empty path")
	}
	if strings.ContainsRune(p, '\x00') || strings.Contains(p, "\\") {
		return "", invalid("path %q contains forbidden characters", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", invalid("path %q is absolute", p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch {
		case seg == "" || seg == ".":
			return "", invalid("path %q is not clean", p)
		case seg == "..":
			return "", invalid("path %q escapes the repository", p)
		case strings.EqualFold(seg, ".git"):
			return "", invalid("path %q touches git metadata", p)
		}
	}
	if strings.HasPrefix(p, "-") {
		return "", invalid("path %q starts with a dash", p)
	}
	return p, nil
}
