// Package builder orchestrates the full transform from one raw stanza body
// to zero-or-more normalized Alert records: parse, then enrich stage by
// stage, then hand the result off to the store.
package builder

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nwws-alert/ingest/internal/capmsg"
	"github.com/nwws-alert/ingest/internal/fips"
	"github.com/nwws-alert/ingest/internal/geodata"
	"github.com/nwws-alert/ingest/internal/model"
	"github.com/nwws-alert/ingest/internal/parse"
	"github.com/rs/zerolog"
)

// Config carries the per-process knobs the Builder needs.
type Config struct {
	AllowedAlerts   []string
	AllowNoGeometry bool
}

// ZoneResolver is the contract the Builder uses to turn a record's UGC
// list into a semicolon-joined friendly areaDesc. Satisfied by
// *zone.Resolver; kept as a narrow interface here so builder tests can stub
// it without a network round trip.
type ZoneResolver interface {
	ResolveAll(ctx context.Context, ids []string) string
}

// Builder composes Alert records from raw stanza text.
type Builder struct {
	cfg     Config
	geo     geodata.Table
	zones   ZoneResolver
	log     zerolog.Logger
	clockFn func() time.Time
}

// New constructs a Builder. clockFn defaults to time.Now when nil; tests
// can override it for determinism.
// zones may be nil, in which case areaDesc is left to whatever the CAP
// cleanup already captured.
func New(cfg Config, geo geodata.Table, zones ZoneResolver, log zerolog.Logger, clockFn func() time.Time) *Builder {
	if clockFn == nil {
		clockFn = func() time.Time { return time.Now().UTC() }
	}
	return &Builder{cfg: cfg, geo: geo, zones: zones, log: log, clockFn: clockFn}
}

// resolveAreaDesc fills rec.AreaDesc from the Zone Name Resolver when one is
// configured and the record doesn't already carry a CAP-supplied areaDesc.
func (b *Builder) resolveAreaDesc(ctx context.Context, rec *model.Alert) {
	if b.zones == nil || rec.AreaDesc != "" || len(rec.UGC) == 0 {
		return
	}
	if desc := b.zones.ResolveAll(ctx, rec.UGC); desc != "" {
		rec.AreaDesc = desc
	}
}

var legacyKeywordRe = regexp.MustCompile(`\b(URGENT|STATEMENT|MESSAGE|REQUEST|BULLETIN)\b`)
var jsonKeyRe = regexp.MustCompile(`"[A-Za-z0-9_]+"\s*:\s*"`)
var bulletinSenderRe = regexp.MustCompile(`BULLETIN\s*-\s*(.+?)\s+National Weather Service`)
var inEffectRe = regexp.MustCompile(`(?i)[A-Z0-9 ]*\bIN EFFECT\b[A-Z0-9 .]*`)
var headlineLineRe = regexp.MustCompile(`(?i)\b(ADVISORY|WARNING|WATCH|EMERGENCY|STATEMENT|ALERT)\b`)
var ugcShapeRe = regexp.MustCompile(`^[A-Z]{2,3}[CZ]\d{3}`)
var digitsOnlyRe = regexp.MustCompile(`^[\d\s.,-]+$`)
var deleteActions = map[model.ActionCode]bool{model.ActionExp: true, model.ActionCan: true}
var updateActions = map[model.ActionCode]bool{
	model.ActionUpg: true, model.ActionCor: true, model.ActionCon: true,
	model.ActionExt: true, model.ActionExa: true, model.ActionExb: true,
}

// ReceivedAction is what the caller (Ingest Supervisor / Store wiring) must
// do with the Builder's output.
type ReceivedAction string

const (
	ActionUpsert ReceivedAction = "upsert"
	ActionDelete ReceivedAction = "delete"
	ActionDrop   ReceivedAction = "drop"
)

// Result is what the Builder hands back for one stanza.
type Result struct {
	Action  ReceivedAction
	Records []model.Alert
	// DeleteKey is populated only when Action == ActionDelete.
	DeleteKey struct{ Office, Phenomena, Significance, ETN string }
}

// Build runs the full build pipeline over one stanza body. officeHint and
// productHint come from the XMPP stanza's cccc/ttaaii attributes when
// present. They serve as identity fallbacks; officeHint also fills each
// record's sender, and productHint the product_type property of a
// non-VTEC CAP record.
func (b *Builder) Build(ctx context.Context, rawText, officeHint, productHint string) Result {
	if legacyKeywordRe.MatchString(rawText) {
		return b.buildFromText(ctx, rawText, officeHint, productHint)
	}

	_, composed, ok := capmsg.Compose(rawText, b.log)
	if !ok {
		return b.buildFromText(ctx, rawText, officeHint, productHint)
	}
	return b.buildFromCAP(ctx, rawText, composed, officeHint, productHint)
}

func (b *Builder) buildFromText(ctx context.Context, rawText, officeHint, productHint string) Result {
	if looksLikeRawXMLOnly(rawText) {
		b.log.Debug().Msg("rejecting stanza: raw XML only")
		return Result{Action: ActionDrop}
	}
	if looksLikeSerializedJSON(rawText) {
		b.log.Debug().Msg("rejecting stanza: serialized JSON-like body")
		return Result{Action: ActionDrop}
	}

	cleaned := parse.CleanMessage(rawText)
	vtec, hasVTEC := parse.DecodeVTEC(cleaned)

	if !hasVTEC {
		if !b.eventAllowed(cleaned) {
			b.log.Debug().Msg("rejecting stanza: no VTEC and event not allow-listed")
			return Result{Action: ActionDrop}
		}
	}

	if hasVTEC {
		if key, isDelete := b.handleAction(vtec); isDelete {
			return Result{
				Action: ActionDelete,
				DeleteKey: struct{ Office, Phenomena, Significance, ETN string }{
					key.Office, key.Phenomena, key.Significance, key.ETN,
				},
			}
		}
		if vtec.Action == model.ActionRou {
			return Result{Action: ActionDrop}
		}
	}

	parts := parse.SplitMessage(cleaned, false)
	if len(parts) == 0 {
		return Result{Action: ActionDrop}
	}

	var records []model.Alert
	baseID := b.resolveIdentity(vtec, hasVTEC, "", productHint, officeHint)
	for i, part := range parts {
		id := baseID
		if len(parts) > 1 {
			id = fmt.Sprintf("%s_%d", baseID, i)
		}
		rec, ok := b.buildRecord(ctx, id, part, vtec, hasVTEC, officeHint, nil)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return Result{Action: ActionDrop}
	}
	return Result{Action: ActionUpsert, Records: records}
}

func (b *Builder) buildFromCAP(ctx context.Context, rawText string, composed capmsg.Composed, officeHint, productHint string) Result {
	vtec, hasVTEC := parse.DecodeVTEC(rawText)
	// composed.Text already carries any preamble bytes (capmsg.Compose
	// prepends them once); do not prepend them again here.
	cleanedCapText := parse.CleanMessage(composed.Text)

	capVTEC, capHasVTEC := parse.DecodeVTEC(composed.Text)
	if hasVTEC && capHasVTEC {
		ov, op, os_, oe := vtec.Key()
		cv, cp, cs, ce := capVTEC.Key()
		if ov == cv && op == cp && os_ == cs && oe == ce {
			b.log.Debug().Msg("rejecting stanza: duplicated VTEC+CAP")
			return Result{Action: ActionDrop}
		}
	}

	if hasVTEC {
		if key, isDelete := b.handleAction(vtec); isDelete {
			return Result{
				Action: ActionDelete,
				DeleteKey: struct{ Office, Phenomena, Significance, ETN string }{
					key.Office, key.Phenomena, key.Significance, key.ETN,
				},
			}
		}
		if vtec.Action == model.ActionRou {
			return Result{Action: ActionDrop}
		}
		parts := parse.SplitMessage(cleanedCapText, false)
		var records []model.Alert
		baseID := b.resolveIdentity(vtec, true, composed.Identifier, productHint, officeHint)
		for i, part := range parts {
			id := baseID
			if len(parts) > 1 {
				id = fmt.Sprintf("%s_%d", baseID, i)
			}
			rec, ok := b.buildRecord(ctx, id, part, vtec, true, officeHint, &composed)
			if !ok {
				continue
			}
			records = append(records, rec)
		}
		if len(records) == 0 {
			return Result{Action: ActionDrop}
		}
		return Result{Action: ActionUpsert, Records: records}
	}

	// Non-VTEC minimal cleanup: requires the event to be allow-listed.
	if !containsFold(b.cfg.AllowedAlerts, composed.Event) {
		b.log.Debug().Str("event", composed.Event).Msg("rejecting stanza: non-VTEC event not allow-listed")
		return Result{Action: ActionDrop}
	}

	id := composed.Identifier
	if id == "" {
		id = b.synthesizeID(productHint, officeHint)
	}
	// UGC comes from the CAP geocodes plus any UGC-shaped lines surviving
	// in the preamble or raw text.
	ugc := append([]string(nil), composed.UGC...)
	for _, line := range findUGCLines(cleanedCapText) {
		ugc = append(ugc, parse.ExpandUGC(line)...)
	}
	rec := model.Alert{
		ID:       id,
		Name:     composed.Event,
		Sender:   officeHint,
		Headline: composed.Headline,
		Issued:   composed.Sent,
		Expiry:   composed.Expires,
		Message:  cleanedCapText,
		AreaDesc: composed.AreaDesc,
		UGC:      dedupeStrings(ugc),
		Properties: model.Properties{
			ReceivedTime: b.clockFn(),
			ProductType:  productHint,
		},
	}
	if ring, ok := parse.ToGeoJSONRing(composed.Polygon); ok {
		rec.Geometry = [][][2]float64{ring}
	}
	b.attachFIPS(&rec)
	b.resolveAreaDesc(ctx, &rec)
	rec.AlertInfo = mergeSections(parse.SplitMessage(cleanedCapText, true))
	normalizeHeadline(&rec)

	if !b.cfg.AllowNoGeometry && len(rec.Geometry) == 0 {
		b.log.Debug().Str("id", id).Msg("rejecting stanza: no geometry and allowNoGeometry is false")
		return Result{Action: ActionDrop}
	}
	return Result{Action: ActionUpsert, Records: []model.Alert{rec}}
}

type vtecKeyParts struct{ Office, Phenomena, Significance, ETN string }

// handleAction maps a VTEC action to its effect: EXP/CAN delete, ROU drop (handled by
// caller), everything else upsert.
func (b *Builder) handleAction(vtec model.VTEC) (key vtecKeyParts, isDelete bool) {
	if deleteActions[vtec.Action] {
		o, p, s, e := vtec.Key()
		return vtecKeyParts{o, p, s, e}, true
	}
	return vtecKeyParts{}, false
}

// buildRecord assembles one Alert from a single message part.
func (b *Builder) buildRecord(ctx context.Context, id, part string, vtec model.VTEC, hasVTEC bool, officeHint string, cap *capmsg.Composed) (model.Alert, bool) {
	rec := model.Alert{
		ID:      id,
		Sender:  officeHint,
		Message: part,
		Properties: model.Properties{
			ReceivedTime: b.clockFn(),
		},
	}
	if hasVTEC {
		v := vtec
		rec.Issued = derefOr(v.StartTime, b.clockFn())
		rec.Expiry = v.EndTime
		rec.Properties.VTEC = &v
		rec.Properties.Phenomena = v.Phenomena
		rec.Properties.Significance = v.Significance
		rec.Properties.EventTrackingNumber = v.EventTrackingNumber
	} else if issued, ok := parse.ParseHumanTimestamp(part); ok {
		rec.Issued = issued
	} else {
		rec.Issued = b.clockFn()
	}

	rec.Name = b.resolveName(part, cap)
	rec.Headline = b.resolveHeadline(&rec, part)

	ugcLines := findUGCLines(part)
	var ugc []string
	for _, line := range ugcLines {
		ugc = append(ugc, parse.ExpandUGC(line)...)
	}
	if cap != nil {
		ugc = append(ugc, cap.UGC...)
	}
	rec.UGC = dedupeStrings(ugc)
	b.attachFIPS(&rec)
	if cap != nil && cap.AreaDesc != "" {
		rec.AreaDesc = cap.AreaDesc
	}
	b.resolveAreaDesc(ctx, &rec)

	var polyFallback []parse.Coord
	if cap != nil {
		polyFallback = cap.Polygon
	}
	if coords, ok := parse.ExtractCoordinates(part, polyFallback); ok {
		if ring, ok := parse.ToGeoJSONRing(coords); ok {
			rec.Geometry = [][][2]float64{ring}
		}
	}
	if len(rec.Geometry) == 0 && updateActions[vtec.Action] {
		// Store.Upsert inherits the prior record's geometry for update
		// actions when the incoming record carries none; nothing to do here
		// but allow it through without a county-overlay fallback.
	} else if len(rec.Geometry) == 0 && len(b.geo) > 0 {
		b.overlayCountyGeometry(&rec)
	}
	if !b.cfg.AllowNoGeometry && vtec.Action == model.ActionNew && len(rec.Geometry) == 0 {
		return model.Alert{}, false
	}

	if motion, ok := parseEventMotion(part, rec.Issued); ok {
		rec.EventMotionDescription = &motion
		if len(rec.Geometry) == 0 && len(motion.Coord) == 2 {
			rec.Geometry = [][][2]float64{{
				{motion.Coord[0], motion.Coord[1]},
				{motion.Coord[0], motion.Coord[1]},
				{motion.Coord[0], motion.Coord[1]},
			}}
		}
	}

	rec.AlertInfo = parse.ExtractSections(part)
	return rec, true
}

func (b *Builder) overlayCountyGeometry(rec *model.Alert) {
	var rings [][][2]float64
	for _, f := range rec.FIPS {
		if geom, ok := b.geo.Lookup(f); ok {
			rings = append(rings, geom...)
		}
	}
	if len(rings) > 0 {
		rec.Geometry = rings
	}
}

func (b *Builder) attachFIPS(rec *model.Alert) {
	var out []string
	for _, u := range rec.UGC {
		if f, ok := fips.FromUGC(u); ok {
			out = append(out, f)
		}
	}
	rec.FIPS = dedupeStrings(out)
}

// resolveIdentity picks the record id: VTEC key, then CAP identifier, then
// a synthesized fallback.
func (b *Builder) resolveIdentity(vtec model.VTEC, hasVTEC bool, capIdentifier, productHint, officeHint string) string {
	if hasVTEC {
		return parse.FormatVTECID(vtec)
	}
	if capIdentifier != "" {
		return capIdentifier
	}
	return b.synthesizeID(productHint, officeHint)
}

func (b *Builder) synthesizeID(productType, office string) string {
	suffix := uuid.New().String()[:8]
	if productType == "" {
		productType = "UNKNOWN"
	}
	if office == "" {
		office = "UNKNOWN"
	}
	return fmt.Sprintf("%s-%s-%s", productType, office, suffix)
}

// resolveName picks the product name: CAP <event>, then the BULLETIN
// sender capture, then the ranked allow-list scan.
func (b *Builder) resolveName(part string, cap *capmsg.Composed) string {
	if cap != nil && cap.Event != "" {
		return cap.Event
	}
	if m := bulletinSenderRe.FindStringSubmatch(part); m != nil {
		return strings.TrimSpace(m[1])
	}
	return b.rankAllowedAlertMatch(part)
}

var rankedSuffixes = []string{"Warning", "Watch", "Advisory", "Statement"}

func (b *Builder) rankAllowedAlertMatch(text string) string {
	upper := strings.ToUpper(text)
	var best string
	bestRank := -1
	bestLen := 0
	for _, candidate := range b.cfg.AllowedAlerts {
		if !strings.Contains(upper, strings.ToUpper(candidate)) {
			continue
		}
		rank := -1
		for i, suffix := range rankedSuffixes {
			if strings.HasSuffix(candidate, suffix) {
				rank = len(rankedSuffixes) - i
				break
			}
		}
		if rank > bestRank || (rank == bestRank && len(candidate) > bestLen) {
			best = candidate
			bestRank = rank
			bestLen = len(candidate)
		}
	}
	if best == "" {
		return "Unknown Alert"
	}
	return best
}

// resolveHeadline derives the one-line summary from the message part.
func (b *Builder) resolveHeadline(rec *model.Alert, part string) string {
	lines := strings.Split(part, "\n")
	var headline string

	firstNonEmpty := ""
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			firstNonEmpty = strings.TrimSpace(l)
			break
		}
	}
	if strings.HasPrefix(firstNonEmpty, "BULLETIN - ") {
		headline = strings.TrimPrefix(firstNonEmpty, "BULLETIN - ")
	} else if m := inEffectRe.FindString(part); m != "" {
		headline = strings.TrimSpace(m)
	} else {
		for _, l := range lines {
			trimmed := strings.TrimSpace(l)
			if headlineLineRe.MatchString(trimmed) {
				headline = trimmed
				break
			}
		}
	}

	if headline != "" && len(lines) > 1 {
		idx := indexOfLine(lines, headline)
		if idx >= 0 && idx+1 < len(lines) {
			next := strings.TrimSpace(lines[idx+1])
			if isShortContinuation(next) {
				headline = headline + " " + next
				rec.Message = removeLine(rec.Message, lines[idx+1])
			}
		}
	}

	if digitsOnlyRe.MatchString(headline) {
		return ""
	}
	return headline
}

// removeLine drops the first occurrence of line from body, keeping the
// surrounding newline structure intact.
func removeLine(body, line string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if l == line {
			return strings.Join(append(lines[:i:i], lines[i+1:]...), "\n")
		}
	}
	return body
}

func indexOfLine(lines []string, target string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) == target {
			return i
		}
	}
	return -1
}

func isShortContinuation(line string) bool {
	if line == "" || len(line) >= 60 {
		return false
	}
	if ugcShapeRe.MatchString(line) {
		return false
	}
	return line == strings.ToUpper(line)
}

func normalizeHeadline(rec *model.Alert) {
	if digitsOnlyRe.MatchString(rec.Headline) {
		rec.Headline = ""
	}
}

var motionRe = regexp.MustCompile(`TIME\.\.\.MOT\.\.\.LOC\s+(\d{4})Z\s+(\d{1,3})DEG\s+(\d{1,3})KT\s+((?:\d{4}\s+\d{4,5}\s*)+)`)

// parseEventMotion decodes the TIME...MOT...LOC line.
func parseEventMotion(text string, issued time.Time) (model.EventMotionDescription, bool) {
	m := motionRe.FindStringSubmatch(text)
	if m == nil {
		return model.EventMotionDescription{}, false
	}
	hhmm, headingStr, speedStr, coordBlob := m[1], m[2], m[3], m[4]

	heading := parseIntOrNil(headingStr)
	speed := parseIntOrNil(speedStr)

	coords, ok := parse.ExtractCoordinates("LAT...LON "+coordBlob, nil)
	motion := model.EventMotionDescription{
		Raw:        strings.TrimSpace(m[0]),
		HeadingDeg: heading,
		SpeedKt:    speed,
		Type:       model.MotionStorm,
	}
	if ok && len(coords) > 0 {
		lat, lon := coords[0].Lat, coords[0].Lon
		motion.Lat = &lat
		motion.Lon = &lon
		motion.Coord = []float64{lon, lat}
	}

	if t, ok := reconstructMotionTime(issued, hhmm); ok {
		motion.TimeISO = t.Format(time.RFC3339)
	}
	return motion, true
}

func reconstructMotionTime(issued time.Time, hhmm string) (time.Time, bool) {
	if len(hhmm) != 4 {
		return time.Time{}, false
	}
	hour, hok := parseTwoDigitInt(hhmm[:2])
	min, mok := parseTwoDigitInt(hhmm[2:])
	if !hok || !mok {
		return time.Time{}, false
	}
	base := time.Date(issued.Year(), issued.Month(), issued.Day(), hour, min, 0, 0, time.UTC)

	// The line carries only HHMM; pick same-day or the +/-1-day variant
	// that lands closest to the issue time.
	best := base
	bestDiff := absDuration(base.Sub(issued))
	for _, delta := range []int{-1, 1} {
		candidate := base.AddDate(0, 0, delta)
		diff := absDuration(candidate.Sub(issued))
		if diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func parseIntOrNil(s string) *int {
	n, ok := parseTwoDigitInt(s)
	if !ok {
		return nil
	}
	return &n
}

// parseTwoDigitInt parses a small run of ASCII digits as an int, kept local
// to the builder rather than shared with internal/parse since it's only
// needed for the motion-line fields (HHMM, heading, speed).
func parseTwoDigitInt(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func derefOr(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

func looksLikeRawXMLOnly(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") &&
		!legacyKeywordRe.MatchString(trimmed)
}

func looksLikeSerializedJSON(text string) bool {
	matches := jsonKeyRe.FindAllString(text, -1)
	_, _, hasCAP := capmsg.ExtractCAPBlock(text)
	return len(matches) >= 3 && !hasCAP
}

func (b *Builder) eventAllowed(text string) bool {
	if len(b.cfg.AllowedAlerts) == 0 {
		return false
	}
	upper := strings.ToUpper(text)
	for _, candidate := range b.cfg.AllowedAlerts {
		if strings.Contains(upper, strings.ToUpper(candidate)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

var ugcLineRe2 = regexp.MustCompile(`(?m)^[A-Z]{2,3}[CZ]\d{3}(?:[->]\d{3})*-[\d-]*\s*$`)

func findUGCLines(text string) []string {
	return ugcLineRe2.FindAllString(text, -1)
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func mergeSections(parts []string) model.AlertInfo {
	info := model.AlertInfo{}
	for _, part := range parts {
		for k, v := range parse.ExtractSections(part) {
			info[k] = v
		}
	}
	return info
}
