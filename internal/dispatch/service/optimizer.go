package service

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
)

// Stop is one route point: a shipment's destination.
type Stop struct {
	ShipmentID string
	Lat        float64
	Lon        float64
}

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Route orders stops by nearest-neighbour from the origin and returns the
// ordered stops with the total route distance in kilometers. Ties break on
// shipment id so the result is deterministic. The input slice is not
// modified.
func Route(originLat, originLon float64, stops []Stop) ([]Stop, float64) {
	remaining := make([]Stop, len(stops))
	copy(remaining, stops)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].ShipmentID < remaining[j].ShipmentID })

	ordered := make([]Stop, 0, len(remaining))
	curLat, curLon := originLat, originLon
	total := 0.0

	for len(remaining) > 0 {
		best := 0
		bestDist := Haversine(curLat, curLon, remaining[0].Lat, remaining[0].Lon)
		for i := 1; i < len(remaining); i++ {
			d := Haversine(curLat, curLon, remaining[i].Lat, remaining[i].Lon)
			if d < bestDist {
				best = i
				bestDist = d
			}
		}

		next := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		ordered = append(ordered, next)
		total += bestDist
		curLat, curLon = next.Lat, next.Lon
	}

	return ordered, total
}

// RouteFingerprint identifies a shipment set independent of order. A plan
// whose stored fingerprint matches skips re-optimization.
func RouteFingerprint(shipmentIDs []string) string {
	sorted := make([]string, len(shipmentIDs))
	copy(sorted, shipmentIDs)
	sort.Strings(sorted)

	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
