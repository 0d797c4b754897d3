// Package derive implements pure functions of Store state:
// mobility detection, estimated-position flagging, unread counts and
// hop-color buckets. Results are recomputed on demand rather than cached
// across writes, which is cheap at MeshMonitor's node-count scale and
// simpler than invalidation bookkeeping.
package derive

import (
	"math"
	"time"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

const (
	earthRadiusKM      = 6371.0
	mobilityDistanceKM = 1.0
)

// MobilityWindow is the trailing window of position history the mobility
// flag considers.
const MobilityWindow = 168 * time.Hour

// IsMobile reports the mobility flag: true iff the maximum
// pairwise great-circle distance among positions within the trailing 168h
// window exceeds 1km. Depends only on the set of positions, so reordering
// insertions yields the same result.
func IsMobile(positions []store.PositionHistoryPoint) bool {
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			if haversineKM(positions[i].Lat, positions[i].Lon, positions[j].Lat, positions[j].Lon) > mobilityDistanceKM {
				return true
			}
		}
	}
	return false
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// IsEstimatedPosition flags nodes whose most recent position carries
// 0 < precisionBits < 32; zero is treated as "not set" and is not flagged.
// The resulting uncertainty-circle
// radius is presentation-only and out of this core's scope.
func IsEstimatedPosition(precisionBits int) bool {
	return precisionBits > 0 && precisionBits < 32
}
