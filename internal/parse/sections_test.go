package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSections_BasicHeadings(t *testing.T) {
	part := "* WHAT...Damaging winds up to 60 mph\n" +
		"* WHERE...Portions of San Diego county\n" +
		"* WHEN...Until 500 PM PST\n"
	info := ExtractSections(part)
	assert.Equal(t, "Damaging winds up to 60 mph", info["WHAT"])
	assert.Equal(t, "Portions of San Diego county", info["WHERE"])
	assert.Equal(t, "Until 500 PM PST", info["WHEN"])
}

func TestExtractSections_MultiLineValueJoinsUntilBlank(t *testing.T) {
	part := "HAZARD...Large hail\n" +
		"and damaging winds\n" +
		"\n" +
		"SOURCE...Radar indicated\n"
	info := ExtractSections(part)
	assert.Equal(t, "Large hail and damaging winds", info["HAZARD"])
	assert.Equal(t, "Radar indicated", info["SOURCE"])
}

func TestExtractSections_CanonicalizesThreatValues(t *testing.T) {
	cases := map[string]string{
		"TORNADO...RADAR INDICATED\n":             "RADAR INDICATED",
		"HAIL THREAT...CONSIDERABLE damage likely\n": "CONSIDERABLE",
		"WIND THREAT...destructive winds expected\n": "destructive winds expected",
	}
	for input, want := range cases {
		t.Run(want, func(t *testing.T) {
			info := ExtractSections(input)
			for _, v := range info {
				assert.Equal(t, want, v)
			}
		})
	}
}

func TestExtractSections_UnknownHeadingIgnored(t *testing.T) {
	part := "NOT A REAL HEADING...some value\n"
	info := ExtractSections(part)
	assert.Empty(t, info)
}
