package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCoordinates_LatLonBlock(t *testing.T) {
	text := "LAT...LON 4085 12407 4090 12410 4080 12400"
	coords, ok := ExtractCoordinates(text, nil)
	require.True(t, ok)
	require.Len(t, coords, 3)
	assert.InDelta(t, 40.85, coords[0].Lat, 0.0001)
	assert.InDelta(t, -124.07, coords[0].Lon, 0.0001)
}

func TestExtractCoordinates_DecimalFallback(t *testing.T) {
	text := "storm located near 40.85,-124.07 moving east"
	coords, ok := ExtractCoordinates(text, nil)
	require.True(t, ok)
	require.Len(t, coords, 1)
	assert.InDelta(t, 40.85, coords[0].Lat, 0.0001)
	assert.InDelta(t, -124.07, coords[0].Lon, 0.0001)
}

func TestExtractCoordinates_PolygonFallback(t *testing.T) {
	fallback := []Coord{{Lat: 1, Lon: 2}}
	coords, ok := ExtractCoordinates("no coordinates at all", fallback)
	require.True(t, ok)
	assert.Equal(t, fallback, coords)
}

func TestToGeoJSONRing_ClosesAndDedupes(t *testing.T) {
	coords := []Coord{{Lat: 34.58, Lon: -117.02}, {Lat: 34.60, Lon: -117.04}, {Lat: 34.62, Lon: -117.02}}
	ring, ok := ToGeoJSONRing(coords)
	require.True(t, ok)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, [2]float64{-117.02, 34.58}, ring[0])
}

func TestToGeoJSONRing_RejectsTooFewPoints(t *testing.T) {
	_, ok := ToGeoJSONRing([]Coord{{Lat: 1, Lon: 2}, {Lat: 1, Lon: 2}})
	assert.False(t, ok)
}
