package parse

import "regexp"

// Stage is a named pure string->string rewrite, following the "multi-stage
// text pipeline" redesign note: each stage has a name and can be tested in
// isolation against fixtures.
type Stage struct {
	Name string
	Run  func(string) string
}

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)
var blankRunRe = regexp.MustCompile(`\n{3,}`)
var separatorRe = regexp.MustCompile(`(?m)^\s*(&&|\$\$)\s*$`)
var bulletHeadingRe = regexp.MustCompile(`(?m)([^\n])\n(\*\s*[A-Z][A-Z ]*\.\.)`)
var doubleNewlineBeforeRe = regexp.MustCompile(
	`(?m)([^\n])\n(HAZARD|SOURCE|IMPACT|Locations impacted include|TIME\.\.\.MOT\.\.\.LOC|LAT\.\.\.LON|MAX HAIL SIZE|MAX WIND GUST|WATERSPOUT|TORNADO|FLASH FLOOD)`,
)
var ugcLineRe = regexp.MustCompile(`(?m)^([A-Z]{2,3}[CZ]\d{3}(?:[->]\d{3})*-)\s*\n\s*`)
var precautionaryRe = regexp.MustCompile(`(?m)([^\n])\n(PRECAUTIONARY/PREPAREDNESS ACTIONS)`)

// cleanupStages is applied in order by CleanMessage.
var cleanupStages = []Stage{
	{Name: "strip-xml", Run: func(s string) string { return xmlTagRe.ReplaceAllString(s, "") }},
	{Name: "separator-paragraphs", Run: func(s string) string {
		return separatorRe.ReplaceAllString(s, "\n\n$1\n\n")
	}},
	{Name: "bullet-heading-break", Run: func(s string) string {
		return bulletHeadingRe.ReplaceAllString(s, "$1\n\n$2")
	}},
	{Name: "section-heading-break", Run: func(s string) string {
		return doubleNewlineBeforeRe.ReplaceAllString(s, "$1\n\n$2")
	}},
	{Name: "precautionary-paragraph", Run: func(s string) string {
		return precautionaryRe.ReplaceAllString(s, "$1\n\n$2")
	}},
	{Name: "ugc-line-collapse", Run: func(s string) string {
		return ugcLineRe.ReplaceAllString(s, "$1")
	}},
	{Name: "collapse-blank-runs", Run: func(s string) string {
		return blankRunRe.ReplaceAllString(s, "\n\n")
	}},
}

// CleanMessage runs the full normalization pipeline over a raw product body.
func CleanMessage(raw string) string {
	out := raw
	for _, stage := range cleanupStages {
		out = stage.Run(out)
	}
	return out
}

// delimiterRe finds the && or $$ separator tokens used by the splitter.
var delimiterRe = regexp.MustCompile(`(&&|\$\$)\s*`)

// SplitMessage splits a cleaned body at each && or $$ token, appending the
// delimiter and any following whitespace to the previous part so a split
// never produces a standalone delimiter part.
// Empty parts are dropped. suppressSplit returns the body verbatim as a
// single part, matching the non-VTEC minimal cleanup path.
func SplitMessage(cleaned string, suppressSplit bool) []string {
	if suppressSplit {
		return []string{cleaned}
	}
	locs := delimiterRe.FindAllStringIndex(cleaned, -1)
	if len(locs) == 0 {
		if trimmed := trimPart(cleaned); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}
	var parts []string
	start := 0
	for _, loc := range locs {
		end := loc[1]
		parts = append(parts, cleaned[start:end])
		start = end
	}
	if start < len(cleaned) {
		parts = append(parts, cleaned[start:])
	}
	var out []string
	for _, p := range parts {
		if trimmed := trimPart(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func trimPart(s string) string {
	start := 0
	end := len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
