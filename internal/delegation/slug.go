package delegation

import "strings"

// Slug normalizes a task name into a filesystem- and log-friendly
// identifier: lowercase, restricted to [a-z0-9-_], with whitespace runs
// collapsed to single hyphens. An empty result yields the fallback.
func Slug(name, fallback string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		}
	}

	parts := strings.Fields(b.String())
	slug := strings.Join(parts, "-")
	if slug == "" {
		return fallback
	}
	return slug
}
