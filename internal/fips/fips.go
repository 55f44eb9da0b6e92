// Package fips holds the U.S. state->FIPS constant table and the UGC->FIPS
// lookup built on top of it.
package fips

import "strings"

// statePrefixFIPS maps a UGC two-letter state prefix to its 2-digit state
// FIPS code. Covers the 50 states, DC, and Puerto Rico; territories not
// named here have no UGC county products and are omitted.
var statePrefixFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56", "PR": "72",
}

// FromUGC maps a UGC code to its FIPS equivalent.
// Only county codes (third letter 'C', e.g. "CAC001") resolve; zone codes
// ("CAZ001") have no FIPS and return ok=false.
func FromUGC(ugc string) (string, bool) {
	if len(ugc) < 6 {
		return "", false
	}
	prefix := ugc[:2]
	kind := ugc[2]
	number := ugc[3:]
	if kind != 'C' {
		return "", false
	}
	stateFips, ok := statePrefixFIPS[strings.ToUpper(prefix)]
	if !ok {
		return "", false
	}
	return stateFips + number, true
}
