package capmsg

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCAPBlock_SplitsPreambleFromXML(t *testing.T) {
	text := "some preamble bytes\n<?xml version=\"1.0\"?>\n<alert><identifier>x</identifier></alert>\ntrailer"
	preamble, capXML, ok := ExtractCAPBlock(text)
	require.True(t, ok)
	assert.Equal(t, "some preamble bytes\n", preamble)
	assert.Contains(t, capXML, "<alert>")
	assert.Contains(t, capXML, "</alert>")
}

func TestExtractCAPBlock_NoAlertBlock(t *testing.T) {
	_, _, ok := ExtractCAPBlock("plain text, no xml here")
	assert.False(t, ok)
}

func TestParse_DecodesInfoAndArea(t *testing.T) {
	xmlText := `<alert>
<identifier>NWS-1</identifier>
<sender>NWS X</sender>
<info>
<event>Flood Warning</event>
<parameter><valueName>NWSheadline</valueName><value>FLOOD WARNING</value></parameter>
<area>
<areaDesc>Some County</areaDesc>
<geocode><valueName>UGC</valueName><value>CAC073 CAC059</value></geocode>
</area>
</info>
</alert>`
	alert, ok := Parse(xmlText)
	require.True(t, ok)
	assert.Equal(t, "NWS-1", alert.Identifier)
	info := alert.PrimaryInfo()
	require.NotNil(t, info)
	assert.Equal(t, "Flood Warning", info.Event)
	v, ok := info.Parameter("NWSheadline")
	require.True(t, ok)
	assert.Equal(t, "FLOOD WARNING", v)
	assert.Equal(t, []string{"CAC073", "CAC059"}, info.Area[0].UGCCodes())
}

func TestCompose_BuildsTextualReplacement(t *testing.T) {
	xmlText := `<?xml version="1.0"?>
<alert>
<identifier>NWS-2</identifier>
<sender>NWS Sacramento CA</sender>
<sent>2026-02-13T03:41:00-00:00</sent>
<info>
<event>Special Weather Statement</event>
<expires>2026-02-13T04:41:00-00:00</expires>
<headline>NWSheadline GUSTY WINDS</headline>
<description>Gusty winds expected today.</description>
<area>
<areaDesc>Sacramento County</areaDesc>
<polygon>38.10,-121.20 38.20,-121.20 38.20,-121.10 38.10,-121.10</polygon>
<geocode><valueName>UGC</valueName><value>CAC067</value></geocode>
</area>
</info>
</alert>`

	preamble, composed, ok := Compose(xmlText, zerolog.Nop())
	require.True(t, ok)
	assert.Empty(t, preamble)
	assert.Equal(t, "NWS-2", composed.Identifier)
	assert.Equal(t, "Special Weather Statement", composed.Event)
	assert.Equal(t, "GUSTY WINDS", composed.Headline)
	assert.Equal(t, "Sacramento County", composed.AreaDesc)
	assert.Equal(t, []string{"CAC067"}, composed.UGC)
	assert.Contains(t, composed.Text, "National Weather Service Sacramento CA")
	require.NotNil(t, composed.Expires)
}
