package parse

import (
	"regexp"
	"strings"

	"github.com/nwws-alert/ingest/internal/model"
)

// headingRe matches an all-caps phrase terminated by ".." or more dots,
// optionally preceded by a bullet marker.
var headingRe = regexp.MustCompile(`^[\*\-•]?\s*([A-Z][A-Z0-9 /]*?)\.{2,}\s*(.*)$`)

// headingAliases maps the free-form caps phrase captured by headingRe to
// the fixed AlertInfo key vocabulary.
var headingAliases = map[string]string{
	"WHAT":                       model.SectionWhat,
	"WHERE":                      model.SectionWhere,
	"WHEN":                       model.SectionWhen,
	"IMPACTS":                    model.SectionImpacts,
	"HAZARD":                     model.SectionHazard,
	"SOURCE":                     model.SectionSource,
	"IMPACT":                     model.SectionImpact,
	"TORNADO":                    model.SectionTornado,
	"TORNADO DAMAGE THREAT":      model.SectionTornadoDamageThreat,
	"THUNDERSTORM DAMAGE THREAT": model.SectionThunderstormDamageThreat,
	"FLASH FLOOD":                model.SectionFlashFlood,
	"FLASH FLOOD DAMAGE THREAT":  model.SectionFlashFloodDamageThreat,
	"HAIL THREAT":                model.SectionHailThreat,
	"WIND THREAT":                model.SectionWindThreat,
	"MAX HAIL SIZE":              model.SectionMaxHailSize,
	"MAX WIND GUST":              model.SectionMaxWindGust,
	"WATERSPOUT":                 model.SectionWaterspout,
	"SNOW SQUALL":                model.SectionSnowSquall,
	"WINDS":                      model.SectionWinds,
	"RELATIVE HUMIDITY":          model.SectionRelativeHumidity,
	"TEMPERATURES":               model.SectionTemperatures,
	"SEVERITY":                   model.SectionSeverity,
}

// threatKeys are the AlertInfo keys whose values get canonicalized to the
// fixed threat vocabulary.
var threatKeys = map[string]bool{
	model.SectionTornadoDamageThreat:      true,
	model.SectionThunderstormDamageThreat: true,
	model.SectionFlashFloodDamageThreat:   true,
	model.SectionHailThreat:               true,
	model.SectionWindThreat:               true,
}

var canonicalThreats = []string{
	"RADAR INDICATED", "RADAR ESTIMATED", "POSSIBLE",
	"CONSIDERABLE", "LIKELY", "CONFIRMED", "NONE",
}

// ExtractSections scans a cleaned message part line-by-line, building the
// AlertInfo mapping and canonicalizing threat values.
func ExtractSections(part string) model.AlertInfo {
	lines := strings.Split(part, "\n")
	info := model.AlertInfo{}
	var currentKey string
	var buf []string

	flush := func() {
		if currentKey == "" {
			return
		}
		value := strings.TrimSpace(strings.Join(buf, " "))
		if value == "" {
			currentKey = ""
			buf = nil
			return
		}
		if threatKeys[currentKey] {
			value = canonicalizeThreat(value)
		}
		info[currentKey] = value
		currentKey = ""
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			key, ok := headingAliases[normalizeHeading(m[1])]
			if !ok {
				continue
			}
			currentKey = key
			if rest := strings.TrimSpace(m[2]); rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if currentKey != "" {
			buf = append(buf, trimmed)
		}
	}
	flush()
	return info
}

func normalizeHeading(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// canonicalizeThreat maps a raw threat phrase to the fixed vocabulary,
// falling back to the leading short phrase when nothing matches.
func canonicalizeThreat(raw string) string {
	upper := strings.ToUpper(raw)
	for _, canon := range canonicalThreats {
		if strings.Contains(upper, canon) {
			return canon
		}
	}
	fields := strings.Fields(raw)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}
