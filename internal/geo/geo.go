// Package geo provides great-circle distance math shared by the presence
// service, the dev server proximity index, and the route-refresh gate.
package geo

import "math"

// EarthRadiusMiles is the mean Earth radius used for haversine distances.
const EarthRadiusMiles = 3959.0

// Distance returns the great-circle distance in miles between two points
// using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// MovedEnough reports whether a position has drifted far enough from the
// last reported one to be worth re-sending. This is an optimization gate for
// route recomputation and location reporting, not a correctness check.
func MovedEnough(lastLat, lastLng, lat, lng, thresholdMiles float64) bool {
	return Distance(lastLat, lastLng, lat, lng) > thresholdMiles
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
