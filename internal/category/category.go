// Package category maps free-text XMLTV category or description strings onto
// the fixed programme taxonomy.
package category

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Category is one of the closed set of programme categories.
type Category string

const (
	Sport         Category = "Sport"
	Cinema        Category = "Cinema"
	Series        Category = "Series"
	News          Category = "News"
	Entertainment Category = "Entertainment"
	Documentary   Category = "Documentary"
	Kids          Category = "Kids"
)

// Default is returned for any text no rule recognises.
const Default = Entertainment

// All lists the categories in display order.
var All = []Category{Sport, Cinema, Series, News, Entertainment, Documentary, Kids}

var frenchLabels = map[Category]string{
	Sport:         "Sport",
	Cinema:        "Cinéma",
	Series:        "Séries",
	News:          "Actualités",
	Entertainment: "Divertissement",
	Documentary:   "Documentaires",
	Kids:          "Enfants",
}

// Label is the French display label.
func (c Category) Label() string {
	if l, ok := frenchLabels[c]; ok {
		return l
	}
	return frenchLabels[Default]
}

// Valid reports whether c is a member of the enum.
func (c Category) Valid() bool {
	_, ok := frenchLabels[c]
	return ok
}

// Parse accepts either the enum name or its French label, case-insensitively.
func Parse(s string) (Category, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	for _, c := range All {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, c.Label()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("category: unknown %q", s)
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// rules are evaluated in order; the first rule with a matching keyword wins.
var rules = []struct {
	cat      Category
	keywords []string
}{
	{Sport, []string{"sport"}},
	{Cinema, []string{"film", "movie", "cinéma"}},
	{Series, []string{"série", "series"}},
	{News, []string{"news", "info", "actualité"}},
	{Kids, []string{"enfant", "jeunesse", "kids"}},
	{Documentary, []string{"documentaire", "documentary"}},
}

// Map is total: any input, including "", yields a member of the enum.
func Map(text string) Category {
	if text == "" {
		return Default
	}
	lower := strings.ToLower(norm.NFC.String(text))
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.cat
			}
		}
	}
	return Default
}

// Source selects the text a programme's category is derived from.
type Source string

const (
	FromCategory    Source = "category"
	FromDescription Source = "description"
	// FromAuto uses the category text, falling back to the description when
	// the category text is empty or only maps to Default.
	FromAuto Source = "auto"
)

// ParseSource validates a CATEGORY_SOURCE setting; "" means FromAuto.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", FromAuto:
		return FromAuto, nil
	case FromCategory:
		return FromCategory, nil
	case FromDescription:
		return FromDescription, nil
	}
	return "", fmt.Errorf("category: unknown source %q", s)
}

// Resolve maps a programme using the text chosen by src.
func Resolve(categoryText, description string, src Source) Category {
	switch src {
	case FromCategory:
		return Map(categoryText)
	case FromDescription:
		return Map(description)
	}
	if c := Map(categoryText); c != Default {
		return c
	}
	return Map(description)
}
