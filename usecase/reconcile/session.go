package reconcile

import (
	"time"

	"github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/google/uuid"
)

type containerRef struct {
	handle   domainReconcile.Handle
	identity string
	// code is the vendor the container was resolved for.
	code string
}

// Session is the epoch-scoped state of one page view. It is only touched
// from the engine's task loop and is dropped wholesale by Reset.
type Session struct {
	epoch     int
	id        string
	location  string
	startedAt time.Time

	// arena assigns every discovered identity a stable id for the epoch.
	arena      map[string]int
	processed  map[int]struct{}
	handled    map[string]struct{}
	decorated  map[domainReconcile.DecorationKey]struct{}
	containers map[string]containerRef
	// decoratedContainers holds container identities already carrying a badge.
	decoratedContainers map[string]struct{}

	passes         int
	decoratedCount int
	lastPass       *domainReconcile.PassSummary

	ready      bool
	vendors    map[string]struct{}
	vendorsLen int
	vendorPage string
	comparison *comparison.Result
	status     string
	warnings   []string
}

func NewSession() *Session {
	s := &Session{}
	s.clear("")
	return s
}

// Reset ends the current epoch and starts a fresh one at location. It
// returns the summary of the epoch that ended.
func (s *Session) Reset(location string) domainReconcile.EpochSummary {
	ended := s.Summary()
	ended.EndedAt = time.Now().UTC()
	s.clear(location)
	return ended
}

func (s *Session) clear(location string) {
	s.epoch++
	s.id = uuid.NewString()
	s.location = location
	s.startedAt = time.Now().UTC()

	s.arena = make(map[string]int)
	s.processed = make(map[int]struct{})
	s.handled = make(map[string]struct{})
	s.decorated = make(map[domainReconcile.DecorationKey]struct{})
	s.containers = make(map[string]containerRef)
	s.decoratedContainers = make(map[string]struct{})

	s.passes = 0
	s.decoratedCount = 0
	s.lastPass = nil

	s.ready = false
	s.vendors = nil
	s.vendorsLen = 0
	s.vendorPage = ""
	s.comparison = nil
	s.status = ""
	s.warnings = nil
}

func (s *Session) Epoch() int {
	return s.epoch
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Location() string {
	return s.location
}

// assign returns the arena id of identity, allocating one on first sight.
func (s *Session) assign(identity string) int {
	if id, ok := s.arena[identity]; ok {
		return id
	}
	id := len(s.arena) + 1
	s.arena[identity] = id
	return id
}

func (s *Session) markProcessed(id int) {
	s.processed[id] = struct{}{}
}

func (s *Session) processedCount() int {
	return len(s.processed)
}

func (s *Session) isHandled(code string) bool {
	_, ok := s.handled[code]
	return ok
}

func (s *Session) markDecorated(key domainReconcile.DecorationKey, container string) {
	s.handled[key.VendorCode] = struct{}{}
	s.decorated[key] = struct{}{}
	s.decoratedContainers[container] = struct{}{}
	s.decoratedCount++
}

func (s *Session) isDecorated(key domainReconcile.DecorationKey) bool {
	_, ok := s.decorated[key]
	return ok
}

func (s *Session) containerDecorated(identity string) bool {
	_, ok := s.decoratedContainers[identity]
	return ok
}

func (s *Session) setVendors(list []vendor.Mapping) {
	s.vendors = make(map[string]struct{}, len(list)*2)
	for _, m := range list {
		if m.SfCode != "" {
			s.vendors[m.SfCode] = struct{}{}
		}
		if m.TfCode != "" {
			s.vendors[m.TfCode] = struct{}{}
		}
	}
	s.vendorsLen = len(list)
}

// isPaired reports whether code belongs to a vendor listed on both platforms.
func (s *Session) isPaired(code string) bool {
	_, ok := s.vendors[code]
	return ok
}

func (s *Session) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *Session) Summary() domainReconcile.EpochSummary {
	var warnings []string
	if len(s.warnings) > 0 {
		warnings = append(warnings, s.warnings...)
	}
	return domainReconcile.EpochSummary{
		EpochID:   s.id,
		Location:  s.location,
		StartedAt: s.startedAt,
		Passes:    s.passes,
		Processed: len(s.processed),
		Decorated: s.decoratedCount,
		Warnings:  warnings,
	}
}

func (s *Session) Snapshot(state string) domainReconcile.Snapshot {
	snap := domainReconcile.Snapshot{
		Epoch:         s.Summary(),
		State:         state,
		VendorPage:    s.vendorPage,
		VendorsLoaded: s.vendorsLen,
		Status:        s.status,
	}
	if s.lastPass != nil {
		p := *s.lastPass
		snap.LastPass = &p
	}
	if s.comparison != nil {
		sum := s.comparison.Summary
		snap.Comparison = &sum
	}
	return snap
}
