package capmsg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-xmlfmt/xmlfmt"
	"github.com/nwws-alert/ingest/internal/parse"
	"github.com/rs/zerolog"
)

// Composed is the result of cleaning up a CAP block into the compact
// textual replacement the rest of the pipeline builds on.
type Composed struct {
	Text       string
	Identifier string
	Sent       time.Time
	Expires    *time.Time
	Headline   string
	Event      string
	AreaDesc   string
	UGC        []string
	Polygon    []parse.Coord
}

var nwsSenderRe = regexp.MustCompile(`^NWS\s+(.+)$`)

// Compose locates the CAP block in text, logs a pretty-printed copy at
// debug level, and builds the compact replacement body plus the captured
// fields needed later by the Builder.
func Compose(text string, log zerolog.Logger) (preamble string, composed Composed, ok bool) {
	pre, capXML, found := ExtractCAPBlock(text)
	if !found {
		return "", Composed{}, false
	}
	log.Debug().Str("xml", xmlfmt.FormatXML(capXML, "", "  ")).Msg("parsed CAP block")

	alert, ok := Parse(capXML)
	if !ok {
		return "", Composed{}, false
	}
	info := alert.PrimaryInfo()
	if info == nil {
		return "", Composed{}, false
	}

	composed.Identifier = alert.Identifier
	composed.Event = info.Event
	headline := info.Headline
	if p, ok := info.Parameter("NWSheadline"); ok && p != "" {
		headline = p
	}
	composed.Headline = strings.TrimPrefix(headline, "NWSheadline ")

	if t, err := time.Parse(time.RFC3339, alert.Sent); err == nil {
		composed.Sent = t.UTC()
	}
	if info.Expires != "" {
		if t, err := time.Parse(time.RFC3339, info.Expires); err == nil {
			exp := t.UTC()
			composed.Expires = &exp
		}
	}

	var b strings.Builder
	b.WriteString(formatSender(alert.Sender))
	b.WriteString("\n")
	if vtec, ok := info.Parameter("VTEC"); ok {
		b.WriteString(vtec)
		b.WriteString("\n")
	}
	if !composed.Sent.IsZero() {
		b.WriteString(composed.Sent.Format("1504Z Mon Jan 2 2006"))
		b.WriteString("\n")
	}
	if info.Description != "" {
		b.WriteString(info.Description)
		b.WriteString("\n\n")
	}
	if info.Instruction != "" {
		b.WriteString(info.Instruction)
		b.WriteString("\n\n")
	}

	for _, area := range info.Area {
		composed.AreaDesc = area.AreaDesc
		composed.UGC = append(composed.UGC, area.UGCCodes()...)
		for _, poly := range area.Polygon {
			composed.Polygon = append(composed.Polygon, parsePolygon(poly)...)
		}
	}
	if len(composed.Polygon) > 0 {
		b.WriteString(formatLatLonLine(composed.Polygon))
		b.WriteString("\n")
	}

	composed.Text = pre + b.String()
	return pre, composed, true
}

func formatSender(sender string) string {
	if m := nwsSenderRe.FindStringSubmatch(sender); m != nil {
		return "National Weather Service " + m[1]
	}
	return sender
}

func formatLatLonLine(coords []parse.Coord) string {
	var b strings.Builder
	b.WriteString("LAT...LON")
	for _, c := range coords {
		lat := int(c.Lat * 100)
		lon := int(-c.Lon * 100)
		b.WriteString(fmt.Sprintf(" %04d %04d", lat, lon))
	}
	return b.String()
}

// parsePolygon decodes a CAP polygon string of space-separated "lat,lon"
// pairs into a coordinate sequence.
func parsePolygon(poly string) []parse.Coord {
	var coords []parse.Coord
	for _, tok := range strings.Fields(poly) {
		parts := strings.SplitN(tok, ",", 2)
		if len(parts) != 2 {
			continue
		}
		lat, err1 := strconv.ParseFloat(parts[0], 64)
		lon, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		coords = append(coords, parse.Coord{Lat: lat, Lon: lon})
	}
	return coords
}
