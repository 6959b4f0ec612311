package reconcile

import (
	"regexp"
	"time"

	"github.com/AzielCF/az-compare/domains/vendor"
)

// Config tunes the reconciliation engine. Zero values fall back to defaults.
type Config struct {
	// CandidateSelectors enumerate the elements a pass visits.
	CandidateSelectors []string
	// TargetShapes are the added-node shapes that trigger a new pass.
	TargetShapes []string
	// ObserveRoot scopes mutation observation; the body is used when absent.
	ObserveRoot string
	// ContainerFallbacks are tried in order to find a candidate's wrapper.
	ContainerFallbacks []string

	ChunkSize int
	// RatingCap stops rating extraction once this many candidates were
	// processed in the epoch. Zero disables the cap.
	RatingCap  int
	HighRating float64

	Debounce         time.Duration
	PollInterval     time.Duration
	LocationThrottle time.Duration
	SettleDelay      time.Duration

	// VendorPages recognize a vendor page location and capture its code.
	VendorPages map[vendor.Platform]*regexp.Regexp
}

func DefaultConfig() Config {
	return Config{
		CandidateSelectors: []string{"a[href*='-r-']", "a[href*='/vendor/']", "[data-vendor-code]"},
		TargetShapes:       []string{"a[href*='-r-']", "a[href*='/vendor/']", "[data-vendor-code]", ".vendor-card", "li"},
		ObserveRoot:        "main",
		ContainerFallbacks: []string{".vendor-card", "li", "article", "section > div"},
		ChunkSize:          20,
		RatingCap:          100,
		HighRating:         4.5,
		Debounce:           300 * time.Millisecond,
		PollInterval:       250 * time.Millisecond,
		LocationThrottle:   time.Second,
		SettleDelay:        500 * time.Millisecond,
		VendorPages: map[vendor.Platform]*regexp.Regexp{
			vendor.PlatformSF: regexp.MustCompile(`-r-([0-9a-zA-Z]+)`),
			vendor.PlatformTF: regexp.MustCompile(`/vendor/([0-9a-zA-Z]+)`),
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.CandidateSelectors) == 0 {
		c.CandidateSelectors = d.CandidateSelectors
	}
	if len(c.TargetShapes) == 0 {
		c.TargetShapes = d.TargetShapes
	}
	if len(c.ContainerFallbacks) == 0 {
		c.ContainerFallbacks = d.ContainerFallbacks
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.RatingCap < 0 {
		c.RatingCap = 0
	}
	if c.HighRating <= 0 {
		c.HighRating = d.HighRating
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.LocationThrottle <= 0 {
		c.LocationThrottle = d.LocationThrottle
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.VendorPages == nil {
		c.VendorPages = d.VendorPages
	}
	return c
}

// vendorPage extracts the platform and vendor code of a vendor page location.
func (c Config) vendorPage(location string) (vendor.Platform, string, bool) {
	for _, p := range []vendor.Platform{vendor.PlatformSF, vendor.PlatformTF} {
		re, ok := c.VendorPages[p]
		if !ok || re == nil {
			continue
		}
		if m := re.FindStringSubmatch(location); len(m) > 1 && m[1] != "" {
			return p, m[1], true
		}
	}
	return "", "", false
}
