package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// SlugValidator validates document identifiers before any backend I/O.
// Validation is pure: no filesystem or network access.
type SlugValidator struct {
	reserved map[string]struct{}
}

// NewSlugValidator builds a validator with the given reserved identifiers
// (matched case-insensitively). Reserved words protect slugs that would
// collide with control routes of the surrounding service.
func NewSlugValidator(reserved []string) *SlugValidator {
	m := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			m[r] = struct{}{}
		}
	}
	return &SlugValidator{reserved: m}
}

// Validate returns nil for well-formed slugs and an error wrapping
// ErrInvalidSlug otherwise. Traversal sequences and control characters are
// rejected explicitly so the failure reason names the offending class even
// though the character-class check would also catch them.
func (v *SlugValidator) Validate(slug string) error {
	switch {
	case slug == "":
		return fmt.Errorf("%w: empty", ErrInvalidSlug)
	case len(slug) > 100:
		return fmt.Errorf("%w: longer than 100 characters", ErrInvalidSlug)
	case strings.Contains(slug, ".."):
		return fmt.Errorf("%w: path traversal sequence", ErrInvalidSlug)
	case strings.ContainsAny(slug, "/\\"):
		return fmt.Errorf("%w: path separator", ErrInvalidSlug)
	case strings.ContainsAny(slug, "\x00\r\n"):
		return fmt.Errorf("%w: control character", ErrInvalidSlug)
	case !slugPattern.MatchString(slug):
		return fmt.Errorf("%w: must match [A-Za-z0-9_-]{1,100}", ErrInvalidSlug)
	}
	if _, ok := v.reserved[strings.ToLower(slug)]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}
