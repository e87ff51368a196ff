// Package geo provides the distance and travel-speed primitives used by
// transaction enrichment. Country positions are approximated by capital
// city coordinates; this is deliberately coarse, the pipeline only cares
// about continent-scale hops.
package geo

import (
	"math"
	"strings"
)

// MaxTravelSpeedKMH is the fastest plausible commercial travel speed.
// Consecutive transactions implying a higher speed are physically
// impossible for one person.
const MaxTravelSpeedKMH = 800.0

const earthRadiusKM = 6371.0

// countryCoords maps ISO 3166-1 alpha-2 codes to approximate capital
// coordinates (lat, lon).
var countryCoords = map[string][2]float64{
	// Europe
	"MT": {35.9375, 14.3754},
	"IT": {41.9028, 12.4964},
	"DE": {52.5200, 13.4050},
	"GB": {51.5074, -0.1278},
	"FR": {48.8566, 2.3522},
	"ES": {40.4168, -3.7038},
	// Middle East
	"AE": {25.2048, 55.2708},
	"SA": {24.7136, 46.6753},
	"BH": {26.2285, 50.5860},
	"QA": {25.2854, 51.5310},
	"PK": {33.6844, 73.0479},
	// Caribbean / Americas
	"KY": {19.2869, -81.3674},
	"US": {38.9072, -77.0369},
	"JM": {18.1096, -77.2975},
	// Asia
	"CN": {39.9042, 116.4074},
	"JP": {35.6762, 139.6503},
	"IN": {28.6139, 77.2090},
	"SG": {1.3521, 103.8198},
	// High-risk jurisdictions
	"KP": {39.0392, 125.7625},
	"IR": {35.6892, 51.3890},
	"SY": {33.5138, 36.2765},
	"CU": {23.1136, -82.3666},
	"RU": {55.7558, 37.6173},
	// Africa
	"NG": {9.0579, 7.4951},
	"ZA": {-33.9249, 18.4241},
}

// CountryCoords returns the reference coordinates for a country code, or
// false when the code is unknown.
func CountryCoords(code string) (lat, lon float64, ok bool) {
	c, ok := countryCoords[strings.ToUpper(code)]
	return c[0], c[1], ok
}

// DistanceKM computes great-circle distance between two points using the
// haversine formula, rounded to 0.1 km.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(earthRadiusKM*c*10) / 10
}

// CountryDistanceKM computes the distance between two countries via their
// reference coordinates. Same country or any unknown code yields 0 rather
// than an error; enrichment must never fail a batch over geography.
func CountryDistanceKM(country1, country2 string) float64 {
	if strings.EqualFold(country1, country2) {
		return 0
	}
	lat1, lon1, ok1 := CountryCoords(country1)
	lat2, lon2, ok2 := CountryCoords(country2)
	if !ok1 || !ok2 {
		return 0
	}
	return DistanceKM(lat1, lon1, lat2, lon2)
}

// MinTravelHours returns the minimum time needed to cover the distance at
// MaxTravelSpeedKMH, rounded to two decimals.
func MinTravelHours(distanceKM float64) float64 {
	if distanceKM <= 0 {
		return 0
	}
	return math.Round(distanceKM/MaxTravelSpeedKMH*100) / 100
}
