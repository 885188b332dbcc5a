// Package logo derives channel slugs and deterministic logo URLs on the
// tv-logo/tv-logos repository layout.
package logo

import (
	"regexp"
	"strings"
)

// DefaultBaseURL is the root of the logo repository's per-country tree.
const DefaultBaseURL = "https://raw.githubusercontent.com/tv-logo/tv-logos/main/countries"

var (
	spaceRun   = regexp.MustCompile(`[\s\p{Zs}]+`)
	parens     = regexp.MustCompile(`[()]`)
	nonWord    = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	dashRun    = regexp.MustCompile(`--+`)
	ampersands = strings.NewReplacer("&", "and")
)

// Slugify lower-cases name, turns whitespace into '-', drops parentheses,
// spells out '&', strips every non-word character and collapses dashes.
// Non-ASCII letters are stripped, so "Télé" becomes "tl".
func Slugify(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(name)
	s = spaceRun.ReplaceAllString(s, "-")
	s = parens.ReplaceAllString(s, "")
	s = ampersands.Replace(s)
	s = nonWord.ReplaceAllString(s, "")
	s = dashRun.ReplaceAllString(s, "-")
	return s
}

// Country is a directory in the logo tree plus the file suffix used there.
type Country struct {
	Dir    string
	Suffix string
}

// DefaultExceptions are channels that live outside the default country.
var DefaultExceptions = map[string]Country{
	"2M Maroc": {Dir: "morocco", Suffix: "ma"},
}

// Resolver builds logo URLs. The zero value resolves to France on the public tree.
type Resolver struct {
	BaseURL    string
	Default    Country
	Exceptions map[string]Country
}

// NewResolver returns a resolver for the given default country with the
// built-in exception table.
func NewResolver(dir, suffix string) *Resolver {
	return &Resolver{
		BaseURL:    DefaultBaseURL,
		Default:    Country{Dir: dir, Suffix: suffix},
		Exceptions: DefaultExceptions,
	}
}

// Resolve returns the logo URL for a channel display name. ok is false when
// name is empty or slugs to nothing.
func (r *Resolver) Resolve(name string) (url string, ok bool) {
	if name == "" {
		return "", false
	}
	slug := Slugify(name)
	if slug == "" {
		return "", false
	}
	c, found := r.Exceptions[name]
	if !found {
		c = r.Default
	}
	if c.Dir == "" {
		c = Country{Dir: "france", Suffix: "fr"}
	}
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + "/" + c.Dir + "/" + slug + "-" + c.Suffix + ".png", true
}
