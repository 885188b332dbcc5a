package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/epgnorm/internal/epgerr"
)

type xmlTVRoot struct {
	XMLName    xml.Name       `xml:"tv"`
	Channels   []xmlChannel   `xml:"channel"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID          string    `xml:"id,attr"`
	DisplayName []Text    `xml:"display-name"`
	Icons       []xmlIcon `xml:"icon"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlProgramme struct {
	Start    string     `xml:"start,attr"`
	Stop     string     `xml:"stop,attr"`
	Channel  string     `xml:"channel,attr"`
	Title    []Text     `xml:"title"`
	Desc     []Text     `xml:"desc"`
	Category []Text     `xml:"category"`
	Credits  xmlCredits `xml:"credits"`
}

type xmlCredits struct {
	Actors []Text `xml:"actor"`
}

// StructuralParser decodes the full <tv> tree. Repeated and single children
// decode into the same slices, so one-element sequences need no special case.
type StructuralParser struct {
	Options
}

func (p *StructuralParser) Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	var root xmlTVRoot
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", epgerr.ErrInvalidDocument, err)
	}
	if len(root.Channels) == 0 && len(root.Programmes) == 0 {
		return nil, fmt.Errorf("%w: no channel or programme elements", epgerr.ErrInvalidDocument)
	}
	doc := &Document{
		Channels:   make([]RawChannel, 0, len(root.Channels)),
		Programmes: make([]RawProgramme, 0, len(root.Programmes)),
	}
	for _, c := range root.Channels {
		ch := RawChannel{
			ID:          strings.TrimSpace(c.ID),
			DisplayName: strings.TrimSpace(Pick(c.DisplayName, p.PreferLangs)),
		}
		for _, ic := range c.Icons {
			if ic.Src != "" {
				ch.LogoURL = strings.TrimSpace(ic.Src)
				break
			}
		}
		doc.Channels = append(doc.Channels, ch)
	}
	doc.Stats.Channels = len(doc.Channels)
	for _, x := range root.Programmes {
		title := strings.TrimSpace(Pick(x.Title, p.PreferLangs))
		if title == "" {
			doc.Stats.drop("missing_field")
			continue
		}
		prog, ok := buildProgramme(p.Codec, &doc.Stats, strings.TrimSpace(x.Channel), x.Start, x.Stop)
		if !ok {
			continue
		}
		prog.Title = title
		prog.Description = strings.TrimSpace(Pick(x.Desc, p.PreferLangs))
		prog.RawCategoryText = strings.TrimSpace(Pick(x.Category, p.PreferLangs))
		for _, a := range x.Credits.Actors {
			if v := strings.TrimSpace(a.Value); v != "" {
				prog.Actors = append(prog.Actors, v)
			}
		}
		doc.Programmes = append(doc.Programmes, prog)
	}
	doc.Stats.Programmes = len(doc.Programmes)
	if n := doc.Stats.DroppedTotal(); n > 0 {
		p.log().WithField("dropped", n).Debugf("xmltv: structural parse dropped %d programme(s)", n)
	}
	return doc, nil
}
