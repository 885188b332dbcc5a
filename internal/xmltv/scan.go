package xmltv

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/epgnorm/internal/epgerr"
)

var (
	progOpen    = []byte("<programme")
	progClose   = []byte("</programme>")
	chanOpen    = []byte("<channel")
	chanClose   = []byte("</channel>")
	attrRe      = regexp.MustCompile(`([A-Za-z_:-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	encodingRe  = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([^"']+)["']`)
	cdataRe     = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	elementRes  = map[string]*regexp.Regexp{}
	elementList = []string{"title", "desc", "category", "actor", "display-name"}
	iconRe      = regexp.MustCompile(`<icon\b[^>]*\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

func init() {
	for _, name := range elementList {
		elementRes[name] = regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(name) + `(\s[^>]*)?>(.*?)</` + regexp.QuoteMeta(name) + `>`)
	}
}

// ScanParser extracts records from <programme ...>...</programme> blocks by
// pattern matching on each block. It never builds a tree, so a malformed region
// only loses the blocks it touches.
type ScanParser struct {
	Options
}

func (p *ScanParser) Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", epgerr.ErrInvalidDocument, err)
	}
	data, err = toUTF8(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", epgerr.ErrInvalidDocument, err)
	}
	doc := &Document{}
	seenBlock := false
	eachBlock(data, chanOpen, chanClose, func(open, body []byte) {
		seenBlock = true
		attrs := tagAttrs(open)
		id := strings.TrimSpace(attrs["id"])
		if id == "" {
			return
		}
		ch := RawChannel{ID: id, DisplayName: p.pick(body, "display-name")}
		if m := iconRe.FindSubmatch(body); m != nil {
			ch.LogoURL = strings.TrimSpace(html.UnescapeString(string(m[1]) + string(m[2])))
		}
		doc.Channels = append(doc.Channels, ch)
	})
	eachBlock(data, progOpen, progClose, func(open, body []byte) {
		seenBlock = true
		attrs := tagAttrs(open)
		title := p.pick(body, "title")
		if title == "" {
			doc.Stats.drop("missing_field")
			return
		}
		prog, ok := buildProgramme(p.Codec, &doc.Stats, strings.TrimSpace(attrs["channel"]), attrs["start"], attrs["stop"])
		if !ok {
			return
		}
		prog.Title = title
		prog.Description = p.pick(body, "desc")
		prog.RawCategoryText = p.pick(body, "category")
		for _, m := range elementRes["actor"].FindAllSubmatch(body, -1) {
			if v := elementText(m[2]); v != "" {
				prog.Actors = append(prog.Actors, v)
			}
		}
		doc.Programmes = append(doc.Programmes, prog)
	})
	if !seenBlock {
		return nil, fmt.Errorf("%w: no channel or programme blocks", epgerr.ErrInvalidDocument)
	}
	doc.Stats.Channels = len(doc.Channels)
	doc.Stats.Programmes = len(doc.Programmes)
	if n := doc.Stats.DroppedTotal(); n > 0 {
		p.log().WithField("dropped", n).Debugf("xmltv: scan dropped %d block(s)", n)
	}
	return doc, nil
}

// eachBlock calls fn with the opening tag and the inner body of every
// open...close block. The opening literal must be followed by whitespace, '/'
// or '>' so that "<programmes" or "<channel-x" do not match.
func eachBlock(data, open, close []byte, fn func(openTag, body []byte)) {
	rest := data
	for {
		i := bytes.Index(rest, open)
		if i < 0 {
			return
		}
		rest = rest[i+len(open):]
		if len(rest) == 0 {
			return
		}
		if c := rest[0]; c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '>' && c != '/' {
			continue
		}
		gt := bytes.IndexByte(rest, '>')
		if gt < 0 {
			return
		}
		openTag := rest[:gt]
		if bytes.HasSuffix(openTag, []byte("/")) {
			fn(openTag, nil)
			rest = rest[gt+1:]
			continue
		}
		end := bytes.Index(rest[gt+1:], close)
		next := bytes.Index(rest[gt+1:], open)
		if end < 0 {
			// Unterminated block: skip it and keep scanning from the next opener.
			rest = rest[gt+1:]
			continue
		}
		if next >= 0 && next < end {
			rest = rest[gt+1:]
			continue
		}
		fn(openTag, rest[gt+1:gt+1+end])
		rest = rest[gt+1+end+len(close):]
	}
}

func tagAttrs(openTag []byte) map[string]string {
	out := make(map[string]string, 4)
	for _, m := range attrRe.FindAllSubmatch(openTag, -1) {
		out[string(m[1])] = html.UnescapeString(string(m[2]) + string(m[3]))
	}
	return out
}

// elements returns every <name> child of body with its lang attribute.
func elements(body []byte, name string) []Text {
	var out []Text
	for _, m := range elementRes[name].FindAllSubmatch(body, -1) {
		out = append(out, Text{Value: elementText(m[2]), Lang: tagAttrs(m[1])["lang"]})
	}
	return out
}

// pick chooses among the <name> children the way StructuralParser does.
func (p *ScanParser) pick(body []byte, name string) string {
	return strings.TrimSpace(Pick(elements(body, name), p.PreferLangs))
}

func elementText(inner []byte) string {
	s := cdataRe.ReplaceAllString(string(inner), "$1")
	return strings.TrimSpace(html.UnescapeString(s))
}

// toUTF8 converts the document when its prolog declares a non-UTF-8 encoding.
func toUTF8(data []byte) ([]byte, error) {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	m := encodingRe.FindSubmatch(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if m == nil {
		return data, nil
	}
	label := strings.ToLower(string(m[1]))
	if label == "utf-8" || label == "utf8" {
		return data, nil
	}
	cr, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", label, err)
	}
	return io.ReadAll(cr)
}
