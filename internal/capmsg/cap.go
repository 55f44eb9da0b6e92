// Package capmsg holds the CAP (Common Alerting Protocol) XML structures
// and the cleanup composer that turns an embedded CAP block into the
// compact textual replacement the rest of the pipeline expects.
package capmsg

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// Alert is the root element of a CAP v1.2 message.
type Alert struct {
	XMLName     xml.Name `xml:"alert"`
	Identifier  string   `xml:"identifier"`
	Sender      string   `xml:"sender"`
	Sent        string   `xml:"sent"`
	Status      string   `xml:"status"`
	MsgType     string   `xml:"msgType"`
	Source      string   `xml:"source"`
	Scope       string   `xml:"scope"`
	Restriction string   `xml:"restriction"`
	Addresses   string   `xml:"addresses"`
	Code        []string `xml:"code"`
	Note        string   `xml:"note"`
	References  string   `xml:"references"`
	Incidents   string   `xml:"incidents"`
	Info        []Info   `xml:"info"`
}

// Info contains the details of one alert info block.
type Info struct {
	Language     string      `xml:"language"`
	Category     []string    `xml:"category"`
	Event        string      `xml:"event"`
	ResponseType []string    `xml:"responseType"`
	Urgency      string      `xml:"urgency"`
	Severity     string      `xml:"severity"`
	Certainty    string      `xml:"certainty"`
	Audience     string      `xml:"audience"`
	EventCode    []ValuePair `xml:"eventCode"`
	Effective    string      `xml:"effective"`
	Onset        string      `xml:"onset"`
	Expires      string      `xml:"expires"`
	SenderName   string      `xml:"senderName"`
	Headline     string      `xml:"headline"`
	Description  string      `xml:"description"`
	Instruction  string      `xml:"instruction"`
	Web          string      `xml:"web"`
	Contact      string      `xml:"contact"`
	Parameters   []ValuePair `xml:"parameter"`
	Resource     []Resource  `xml:"resource"`
	Area         []Area      `xml:"area"`
}

// Area describes a geographic area covered by an Info block.
type Area struct {
	AreaDesc string      `xml:"areaDesc"`
	Polygon  []string    `xml:"polygon"`
	Circle   []string    `xml:"circle"`
	Geocodes []ValuePair `xml:"geocode"`
	Altitude string      `xml:"altitude"`
	Ceiling  string      `xml:"ceiling"`
}

// ValuePair is a name/value pair used by parameters, eventCodes, and geocodes.
type ValuePair struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

// Resource is a supplementary digital resource attached to an Info block.
type Resource struct {
	ResourceDesc string `xml:"resourceDesc"`
	MimeType     string `xml:"mimeType"`
	Size         int    `xml:"size"`
	URI          string `xml:"uri"`
	DerefURI     string `xml:"derefUri"`
	Digest       string `xml:"digest"`
}

// capBlockRe locates "<?xml ... <alert ... </alert>" within arbitrary
// preamble bytes.
var capBlockRe = regexp.MustCompile(`(?s)(<\?xml.*?)?(<alert[^>]*>.*</alert>)`)

// ExtractCAPBlock splits text into (preamble, capXML, ok). preamble is any
// bytes that appeared before the XML declaration or <alert> tag.
func ExtractCAPBlock(text string) (preamble, capXML string, ok bool) {
	loc := capBlockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", "", false
	}
	preamble = text[:loc[0]]
	capXML = text[loc[0]:loc[1]]
	return preamble, capXML, true
}

// Parse unmarshals a CAP XML block. Returns ok=false (not an error) when the
// text plainly isn't CAP, matching the fail-soft policy.
func Parse(xmlText string) (*Alert, bool) {
	xmlText = strings.TrimSpace(xmlText)
	if !strings.Contains(xmlText, "<alert") {
		return nil, false
	}
	var alert Alert
	if err := xml.Unmarshal([]byte(xmlText), &alert); err != nil {
		return nil, false
	}
	return &alert, true
}

// PrimaryInfo returns the first Info block, or nil if none exist.
func (a *Alert) PrimaryInfo() *Info {
	if len(a.Info) == 0 {
		return nil
	}
	return &a.Info[0]
}

// Parameter returns the value of a named parameter (e.g. "VTEC", "NWSheadline").
func (i *Info) Parameter(name string) (string, bool) {
	for _, p := range i.Parameters {
		if p.ValueName == name {
			return p.Value, true
		}
	}
	return "", false
}

// Geocode returns the value of a named geocode (e.g. "UGC", "SAME").
func (a *Area) Geocode(name string) (string, bool) {
	for _, c := range a.Geocodes {
		if c.ValueName == name {
			return c.Value, true
		}
	}
	return "", false
}

// UGCCodes returns the space-separated UGC geocode values split into tokens.
func (a *Area) UGCCodes() []string {
	if v, ok := a.Geocode("UGC"); ok {
		return strings.Fields(v)
	}
	return nil
}
