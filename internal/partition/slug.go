package partition

import (
	"fmt"
	"regexp"
	"strings"
)

// IndexNamePrefix is the prefix of legacy index names ("vectordb-oyedepo").
const IndexNamePrefix = "vectordb-"

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9_-]+$`)
	titlePattern = regexp.MustCompile(`^(bishop|pastor)\s+`)
)

// NormalizeSlug maps user input to a slug: trimmed, lower-cased, with a legacy
// index-name prefix or a leading "bishop "/"pastor " title removed and every
// character outside [a-z0-9_-] dropped. The result may be empty.
func NormalizeSlug(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.TrimPrefix(s, IndexNamePrefix)
	s = titlePattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, s)
}

// ValidateSlug checks that slug is safe to use as a file name stem.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// Resolver turns request input into a partition slug.
type Resolver struct {
	defaultSlug string
	aliases     map[string]string
}

// NewResolver creates a resolver. Empty input resolves to defaultSlug. Alias keys
// and targets are normalized, so "Pastor Enoch Adeboye" can map to "adeboye".
func NewResolver(defaultSlug string, aliases map[string]string) *Resolver {
	r := &Resolver{defaultSlug: NormalizeSlug(defaultSlug), aliases: make(map[string]string, len(aliases))}
	for alias, slug := range aliases {
		r.aliases[NormalizeSlug(alias)] = NormalizeSlug(slug)
	}
	return r
}

// Resolve returns the slug for input.
func (r *Resolver) Resolve(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		if r.defaultSlug == "" {
			return "", fmt.Errorf("%w: no partition given and no default configured", ErrInvalidSlug)
		}
		return r.defaultSlug, nil
	}
	slug := NormalizeSlug(input)
	if target, ok := r.aliases[slug]; ok {
		slug = target
	}
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	return slug, nil
}

// Default returns the default slug.
func (r *Resolver) Default() string {
	return r.defaultSlug
}
