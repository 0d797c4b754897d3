package derive

// UnreadCount counts timestamps strictly newer than lastRead.
// The Store-backed equivalent (store.DB.UnreadCount) runs this as a SQL
// COUNT rather than materializing timestamps, but the two must agree by
// construction. This pure form exists for the derivation layer's own
// tests and for callers that already have an in-memory timestamp set.
func UnreadCount(timestamps []int64, lastRead int64) int {
	count := 0
	for _, ts := range timestamps {
		if ts > lastRead {
			count++
		}
	}
	return count
}
