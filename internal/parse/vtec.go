// Package parse holds the pure, I/O-free text transforms that turn a raw
// NWWS-OI product body into structured fragments: VTEC codes, human
// timestamps, coordinates, UGC groups, cleaned message bodies, and
// section/threat extraction. Every function here fails soft — a
// malformed or absent fragment yields a zero value, never an error
// visible to the caller.
package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/nwws-alert/ingest/internal/model"
)

// legacyVTECRe matches the slashes-and-dots VTEC layout:
// /K.AAA.CCCC.PP.S.NNNN.YYMMDDTHHMMZ-YYMMDDTHHMMZ/
var legacyVTECRe = regexp.MustCompile(`/([OTEX])\.([A-Z]{3})\.([A-Z]{4})\.([A-Z]{2})\.([A-Z])\.(\d{4})\.(\d{6}T\d{4}Z)-(\d{6}T\d{4}Z)/`)

// capVTECParamRe matches a CAP <parameter> block carrying a VTEC value.
var capVTECParamRe = regexp.MustCompile(`(?s)<parameter>\s*<valueName>VTEC</valueName>\s*<value>(.*?)</value>\s*</parameter>`)

// capVTECInlineRe matches a bare VTEC string embedded without the dots split
// already applied, found inside a <value> that only contains the code.
var capVTECInlineRe = regexp.MustCompile(`/([OTEX])\.([A-Z]{3})\.([A-Z]{4})\.([A-Z]{2})\.([A-Z])\.(\d{4})\.(\d{6}T\d{4}Z)-(\d{6}T\d{4}Z)/`)

// DecodeVTEC finds the first VTEC occurrence in text, preferring the legacy
// slashes form and falling back to a CAP <parameter>/VTEC block, and decodes
// it into a model.VTEC. It returns ok=false if no VTEC is present; a start
// or end token that does not parse as a date leaves that time nil.
func DecodeVTEC(text string) (model.VTEC, bool) {
	if m := legacyVTECRe.FindStringSubmatch(text); m != nil {
		return buildVTEC(m)
	}
	if m := capVTECParamRe.FindStringSubmatch(text); m != nil {
		if inner := capVTECInlineRe.FindStringSubmatch(m[1]); inner != nil {
			return buildVTEC(inner)
		}
	}
	return model.VTEC{}, false
}

func buildVTEC(m []string) (model.VTEC, bool) {
	// m[1]=K m[2]=AAA m[3]=CCCC m[4]=PP m[5]=S m[6]=NNNN m[7]=start m[8]=end
	v := model.VTEC{
		ProductClass:        m[1],
		Action:              model.ActionCode(m[2]),
		Office:              m[3],
		Phenomena:           m[4],
		Significance:        m[5],
		EventTrackingNumber: m[6],
	}
	if start, ok := parseVTECTimestamp(m[7]); ok {
		v.StartTime = &start
	}
	if end, ok := parseVTECTimestamp(m[8]); ok {
		v.EndTime = &end
	}
	return v, true
}

// parseVTECTimestamp parses a YYMMDDTHHMMZ token as UTC.
func parseVTECTimestamp(token string) (time.Time, bool) {
	if len(token) != 12 {
		return time.Time{}, false
	}
	t, err := time.Parse("060102T1504Z", token)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// VTECKey extracts just the office/phenomena/significance/etn tuple used for
// identity and for the CAN/EXP delete path, without requiring full decode of
// start/end times.
func VTECKey(text string) (office, phenomena, significance, etn string, ok bool) {
	v, ok := DecodeVTEC(text)
	if !ok {
		return "", "", "", "", false
	}
	office, phenomena, significance, etn = v.Key()
	return office, phenomena, significance, etn, true
}

// FormatVTECID renders office.phenomena.significance.etn.
func FormatVTECID(v model.VTEC) string {
	return strings.Join([]string{v.Office, v.Phenomena, v.Significance, v.EventTrackingNumber}, ".")
}
