package xmltv

import (
	"strings"

	"golang.org/x/text/language"
)

// Text is an XMLTV text node. A bare node has an empty Lang; a localized node
// (e.g. <title lang="fr">) carries its tag.
type Text struct {
	Value string `xml:",chardata"`
	Lang  string `xml:"lang,attr,omitempty"`
}

// Localized reports whether the node carried a lang attribute.
func (t Text) Localized() bool { return t.Lang != "" }

// Extract projects any text-node shape onto its string value. It is total:
// unsupported shapes and nil yield "". Extract(Extract(x)) == Extract(x).
func Extract(node any) string {
	switch v := node.(type) {
	case string:
		return v
	case Text:
		return v.Value
	case *Text:
		if v == nil {
			return ""
		}
		return v.Value
	case []Text:
		for _, t := range v {
			if t.Value != "" {
				return t.Value
			}
		}
	case []string:
		for _, s := range v {
			if s != "" {
				return s
			}
		}
	}
	return ""
}

// Pick returns the text of the node whose lang best matches prefer. With no
// preference, or no tagged node, it falls back to the first non-empty value.
func Pick(nodes []Text, prefer []language.Tag) string {
	if len(nodes) == 0 {
		return ""
	}
	if len(prefer) > 0 {
		var tags []language.Tag
		var idxs []int
		for i, n := range nodes {
			if !n.Localized() || strings.TrimSpace(n.Value) == "" {
				continue
			}
			tag, err := language.Parse(strings.TrimSpace(n.Lang))
			if err != nil {
				continue
			}
			tags = append(tags, tag)
			idxs = append(idxs, i)
		}
		if len(tags) > 0 {
			m := language.NewMatcher(tags)
			_, i, conf := m.Match(prefer...)
			if conf != language.No {
				return nodes[idxs[i]].Value
			}
		}
	}
	return Extract(nodes)
}

// ParseLangs turns "fr,en" into language tags, skipping invalid entries.
func ParseLangs(s string) []language.Tag {
	var out []language.Tag
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if tag, err := language.Parse(part); err == nil {
			out = append(out, tag)
		}
	}
	return out
}
