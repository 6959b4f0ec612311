package reconcile

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AzielCF/az-compare/domains/comparison"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
)

// Handle is an opaque reference to an element of the watched document.
type Handle any

// Item is one candidate element. Identity is the element's raw identity in
// the current document and is what per-epoch memoization is keyed on.
type Item struct {
	Handle   Handle
	Identity string
}

// DecorationKey is decorated at most once per epoch.
type DecorationKey struct {
	VendorCode   string `json:"vendor_code"`
	RatingBucket string `json:"rating_bucket,omitempty"`
	IsPaired     bool   `json:"is_paired"`
	IsHighRated  bool   `json:"is_high_rated"`
}

func (k DecorationKey) String() string {
	bucket := k.RatingBucket
	if bucket == "" {
		bucket = "none"
	}
	return fmt.Sprintf("%s|%s|%t|%t", k.VendorCode, bucket, k.IsPaired, k.IsHighRated)
}

// RatingBucket floors rating to half-star steps. Absent ratings have no bucket.
func RatingBucket(rating float64, ok bool) string {
	if !ok || rating <= 0 || math.IsNaN(rating) {
		return ""
	}
	return strconv.FormatFloat(math.Floor(rating*2)/2, 'f', 1, 64)
}

// Node is an element added by a document mutation.
type Node interface {
	Matches(selector string) bool
}

type MutationRecord struct {
	Added []Node
}

// PageAdapter is the boundary to the watched document. Decorate must be
// idempotent for the same container and key.
type PageAdapter interface {
	CurrentLocation() string
	QueryCandidates(selectors []string) []Item
	ExtractVendorCode(item Item) (string, bool)
	ExtractRating(item Item) (float64, bool)
	Fingerprint(item Item) string
	FindContainer(item Item, fallbacks []string) (Handle, bool)
	ContainerIdentity(container Handle) string
	Decorate(container Handle, key DecorationKey) error
	// Observe reports mutations under root. scoped is false when root was not
	// found and the whole body is observed instead.
	Observe(root string, fn func(MutationRecord)) (stop func(), scoped bool)
}

type EventType string

const (
	EventPassCompleted EventType = "PASS_COMPLETED"
	EventEpochStarted  EventType = "EPOCH_STARTED"
	EventEpochReset    EventType = "EPOCH_RESET"
	EventComparison    EventType = "COMPARISON_READY"
	EventWarning       EventType = "WARNING"
	EventCacheStats    EventType = "CACHE_STATS"
)

type PassSummary struct {
	Pass           int           `json:"pass"`
	Candidates     int           `json:"candidates"`
	Slices         int           `json:"slices"`
	Decorated      int           `json:"decorated"`
	Duplicates     int           `json:"duplicates"`
	NoCode         int           `json:"no_code"`
	NoContainer    int           `json:"no_container"`
	Failed         int           `json:"failed"`
	RatingsSkipped int           `json:"ratings_skipped"`
	Duration       time.Duration `json:"duration"`
	Abandoned      bool          `json:"abandoned,omitempty"`
}

type EpochSummary struct {
	EpochID   string    `json:"epoch_id"`
	Location  string    `json:"location"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Passes    int       `json:"passes"`
	Processed int       `json:"processed"`
	Decorated int       `json:"decorated"`
	Warnings  []string  `json:"warnings,omitempty"`
}

type Event struct {
	Type       EventType           `json:"type"`
	EpochID    string              `json:"epoch_id,omitempty"`
	Location   string              `json:"location,omitempty"`
	At         time.Time           `json:"at"`
	Message    string              `json:"message,omitempty"`
	Pass       *PassSummary        `json:"pass,omitempty"`
	Epoch      *EpochSummary       `json:"epoch,omitempty"`
	Comparison *comparison.Summary `json:"comparison,omitempty"`
	Caches     []ttlcache.Stats    `json:"caches,omitempty"`
}

// NotificationSink receives observability events. Publish must not block.
type NotificationSink interface {
	Publish(event Event)
}

// Snapshot is a consistent read of the current epoch.
type Snapshot struct {
	Epoch         EpochSummary        `json:"epoch"`
	State         string              `json:"state"`
	VendorPage    string              `json:"vendor_page,omitempty"`
	VendorsLoaded int                 `json:"vendors_loaded"`
	LastPass      *PassSummary        `json:"last_pass,omitempty"`
	Comparison    *comparison.Summary `json:"comparison,omitempty"`
	Status        string              `json:"status,omitempty"`
}

type IReconcileUsecase interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Comparison(ctx context.Context) (*comparison.Result, error)
	Rescan(ctx context.Context) error
}
