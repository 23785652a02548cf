package sshdocker

import "time"

// secondsToTime converts a Unix timestamp in seconds, as returned by
// both the Docker Engine API and `docker events` CLI output, into a
// time.Time. (`docker ps` reports CreatedAt as text; see parseCLITime.)
func secondsToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
