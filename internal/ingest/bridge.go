package ingest

import "regexp"

// bridgePatterns match known MQTT-bridge traffic signatures. Matching
// messages are still persisted, only flagged, so the UI can
// hide them by default without losing observability.
var bridgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`mqtt\.`),
	regexp.MustCompile(`areyoumeshingwith\.us`),
	regexp.MustCompile(`^\d+\.\d+\.\d+\.[a-f0-9]+$`),
	regexp.MustCompile(`^/.*\.(js|css|proto|html)$`),
	regexp.MustCompile(`[\x80-\xff]{4,}`), // high-bit garbage
}

func isBridgeTraffic(text string) bool {
	for _, re := range bridgePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
