package derive

// HopColor is a stable presentation-only bucket for a node's hop
// distance. The enum values themselves are part of the API contract
// (clients switch on the string), so new buckets must only be appended.
type HopColor string

const (
	HopColorLocal   HopColor = "local"
	HopColorGreen   HopColor = "green"
	HopColorAmber   HopColor = "amber"
	HopColorRed     HopColor = "red"
	HopColorUnknown HopColor = "grey"
)

// HopColorBucket maps a node's hopsAway (and whether it's known at all) to
// its presentation bucket.
func HopColorBucket(hopsAway int, known bool) HopColor {
	if !known {
		return HopColorUnknown
	}
	switch {
	case hopsAway == 0:
		return HopColorLocal
	case hopsAway <= 2:
		return HopColorGreen
	case hopsAway <= 4:
		return HopColorAmber
	default:
		return HopColorRed
	}
}
