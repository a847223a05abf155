package entity

import "time"

// DownloadRecord tracks one watched download from watch start until the
// artifact is moved and verified.
type DownloadRecord struct {
	Dir          string
	Pattern      string
	Path         string
	DiscoveredAt time.Time
}
