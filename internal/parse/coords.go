package parse

import (
	"regexp"
	"strconv"
)

// latLonBlockRe finds a "LAT...LON" token followed by a run of whitespace-
// separated 4-5 digit integers.
var latLonBlockRe = regexp.MustCompile(`LAT\.\.\.LON((?:\s+\d{4,5})+)`)
var latLonTokenRe = regexp.MustCompile(`\d{4,5}`)

// decimalPairRe finds a bare "lat,lon" or "lat lon" decimal pair anywhere in
// text.
var decimalPairRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)[,\s]+(-?\d{1,3}\.\d+)`)

// Coord is a [lat, lon] pair as produced by the extractor; callers convert to
// GeoJSON [lon, lat] order when building geometry.
type Coord struct {
	Lat float64
	Lon float64
}

// ExtractCoordinates applies the three-tier preference order above and
// returns the first tier that yields at least one point. polygonFallback is
// the caller-supplied CAP polygon points (tier 3), already in [lat,lon] order.
func ExtractCoordinates(text string, polygonFallback []Coord) ([]Coord, bool) {
	if coords, ok := extractLatLonBlock(text); ok {
		return coords, true
	}
	if coords, ok := extractDecimalPairs(text); ok {
		return coords, true
	}
	if len(polygonFallback) > 0 {
		return polygonFallback, true
	}
	return nil, false
}

func extractLatLonBlock(text string) ([]Coord, bool) {
	m := latLonBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	tokens := latLonTokenRe.FindAllString(m[1], -1)
	var coords []Coord
	for i := 0; i+1 < len(tokens); i += 2 {
		lat, ok := decodeLat(tokens[i])
		if !ok {
			continue
		}
		lon, ok := decodeLon(tokens[i+1])
		if !ok {
			continue
		}
		coords = append(coords, Coord{Lat: lat, Lon: lon})
	}
	if len(coords) == 0 {
		return nil, false
	}
	return coords, true
}

// decodeLat parses a 4-digit DDDD token as DD.DD, always positive.
func decodeLat(token string) (float64, bool) {
	if len(token) != 4 {
		return 0, false
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return float64(n) / 100, true
}

// decodeLon parses a 4- or 5-digit token as DD.DD or DDD.DD, forced negative
// (western-hemisphere assumption).
func decodeLon(token string) (float64, bool) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	switch len(token) {
	case 4:
		return -float64(n) / 100, true
	case 5:
		return -float64(n) / 100, true
	default:
		return 0, false
	}
}

func extractDecimalPairs(text string) ([]Coord, bool) {
	matches := decimalPairRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}
	var coords []Coord
	for _, m := range matches {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		coords = append(coords, Coord{Lat: lat, Lon: lon})
	}
	if len(coords) == 0 {
		return nil, false
	}
	return coords, true
}

// ToGeoJSONRing converts an ordered [lat,lon] sequence into a closed
// [lon,lat] ring, discarding it (ok=false) if fewer than 3 distinct points
// remain.
func ToGeoJSONRing(coords []Coord) ([][2]float64, bool) {
	distinct := dedupeCoords(coords)
	if len(distinct) < 3 {
		return nil, false
	}
	ring := make([][2]float64, 0, len(distinct)+1)
	for _, c := range distinct {
		ring = append(ring, [2]float64{c.Lon, c.Lat})
	}
	first := ring[0]
	last := ring[len(ring)-1]
	if first != last {
		ring = append(ring, first)
	}
	return ring, true
}

func dedupeCoords(coords []Coord) []Coord {
	seen := make(map[Coord]bool, len(coords))
	out := make([]Coord, 0, len(coords))
	for _, c := range coords {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
