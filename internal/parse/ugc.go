package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var ugcPrefixRe = regexp.MustCompile(`^([A-Z]{2,3})(\d{3})$`)
var ugcRangeRe = regexp.MustCompile(`^(\d{3})>(\d{3})$`)
var ugcBareRe = regexp.MustCompile(`^\d{3}$`)
var ugcTimestampRe = regexp.MustCompile(`^\d{6}$`)

// ExpandUGC decodes a raw UGC group string such as "CAZ001-002>005-141800-"
// into a deduplicated, ordered sequence of fully-qualified codes.
func ExpandUGC(raw string) []string {
	trimmed := strings.Trim(raw, "-")
	if trimmed == "" {
		return nil
	}
	tokens := strings.Split(trimmed, "-")
	if len(tokens) == 0 {
		return nil
	}

	m := ugcPrefixRe.FindStringSubmatch(tokens[0])
	if m == nil {
		return nil
	}
	prefix := m[1]

	seen := make(map[string]bool)
	var out []string
	add := func(code string) {
		if seen[code] {
			return
		}
		seen[code] = true
		out = append(out, code)
	}
	add(prefix + m[2])

	for _, tok := range tokens[1:] {
		switch {
		case ugcBareRe.MatchString(tok):
			add(prefix + tok)
		case ugcRangeRe.MatchString(tok):
			rm := ugcRangeRe.FindStringSubmatch(tok)
			lo, _ := strconv.Atoi(rm[1])
			hi, _ := strconv.Atoi(rm[2])
			if lo > hi || hi-lo >= 1000 {
				continue
			}
			for n := lo; n <= hi; n++ {
				add(prefix + formatUGCNumber(n))
			}
		case ugcTimestampRe.MatchString(tok):
			// timestamp, ignored
		default:
			// unrecognized token, ignored
		}
	}
	return out
}

func formatUGCNumber(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
