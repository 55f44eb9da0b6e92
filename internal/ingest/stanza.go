package ingest

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"gosrc.io/xmpp/stanza"
)

/*
Example Message Format:
<message to='enduser@server/laptop' type='groupchat' from='nwws@nwws-oi.weather.gov/nwws-oi'>

<body>KARX issues RR8 valid 2013-05-25T02:20:34Z</body>

<x xmlns='nwws-oi' cccc='KARX' ttaaii='SRUS83' issue='2013-05-25T02:20:34Z' awipsid='RR8ARX' id='10313.6'>

111

# SRUS83 KARX 250220

: AUTOMATED GAUGE DATA COLLECTED FROM IOWA FLOOD CENTER

.A CDGI4 20130524 C DH2100/HGIRP 2.63 : MORGAN CREEK NEAR CEDAR RAPIDS

</x>

</message>
*/

// stanzaExtension decodes the <x xmlns='nwws-oi'> element carried on every
// NWWS-OI groupchat message: the raw product text plus the office/product
// identification attributes the Alert Builder uses as identity fallbacks.
type stanzaExtension struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"nwws-oi x"`
	Text    string   `xml:",chardata"`
	// Four character issuing center.
	Cccc string `xml:"cccc,attr"`
	// The six character WMO product ID.
	Ttaaii string `xml:"ttaaii,attr"`
	// ISO_8601 datetime in UTC.
	Issue string `xml:"issue,attr"`
	// The six character AWIPS ID, sometimes called AFOS PIL.
	AwipsID string `xml:"awipsid,attr"`
	// process_id.sequence_number, used to detect gaps in the stream.
	ID string `xml:"id,attr"`
}

// sequenceID splits the id attribute into the producing process id and a
// simple incrementing sequence number.
func (x *stanzaExtension) sequenceID() (processName string, seq int, ok bool) {
	parts := strings.Split(x.ID, ".")
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], n, true
}

func init() {
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "nwws-oi", Local: "x"}, stanzaExtension{})
}

// formatProductRef renders a short "CCCC/TTAAII" tag for log lines.
func formatProductRef(cccc, ttaaii string) string {
	return fmt.Sprintf("%s/%s", cccc, ttaaii)
}
