package contracts

import (
	"strings"
	"time"
)

// SizeBucket classifies an entity by market capitalisation
type SizeBucket string

const (
	SizeLarge SizeBucket = "large"
	SizeMid   SizeBucket = "mid"
	SizeSmall SizeBucket = "small"
	SizeMicro SizeBucket = "micro"
)

// ParseSizeBucket accepts the bucket names case-insensitively
func ParseSizeBucket(s string) (SizeBucket, bool) {
	switch SizeBucket(strings.ToLower(strings.TrimSpace(s))) {
	case SizeLarge:
		return SizeLarge, true
	case SizeMid:
		return SizeMid, true
	case SizeSmall:
		return SizeSmall, true
	case SizeMicro:
		return SizeMicro, true
	}
	return "", false
}

// Entity is a tradable security. ID (the ticker symbol) never changes;
// the descriptive attributes are refreshed on every listing discovery.
// ⭐ SSOT: entity identity
type Entity struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Market     string     `json:"market"`
	Sector     string     `json:"sector"`
	SizeBucket SizeBucket `json:"size_bucket,omitempty"`
	Active     bool       `json:"active"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
