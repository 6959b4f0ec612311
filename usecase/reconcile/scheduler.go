package reconcile

import (
	"context"
	"time"

	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/pkg/metrics"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/sirupsen/logrus"
)

const (
	StateIdle     = "idle"
	StateScanning = "scanning"
)

// Rating is a cached rating extraction. OK is false when the candidate shows none.
type Rating struct {
	Value float64
	OK    bool
}

type pass struct {
	epoch   int
	items   []domainReconcile.Item
	index   int
	started time.Time
	summary domainReconcile.PassSummary
}

// Scheduler walks the candidate set in bounded slices, yielding to the task
// loop between slices. Every method runs on the loop.
type Scheduler struct {
	cfg     Config
	loop    *taskloop.Loop
	page    domainReconcile.PageAdapter
	session *Session
	ratings *ttlcache.Cache[string, Rating]
	sink    domainReconcile.NotificationSink

	current *pass
	pending bool
	passSeq int
}

func NewScheduler(cfg Config, loop *taskloop.Loop, page domainReconcile.PageAdapter, session *Session, ratings *ttlcache.Cache[string, Rating], sink domainReconcile.NotificationSink) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		loop:    loop,
		page:    page,
		session: session,
		ratings: ratings,
		sink:    sink,
	}
}

func (s *Scheduler) State() string {
	if s.current != nil {
		return StateScanning
	}
	return StateIdle
}

// Request starts a pass, or marks one pending when a pass is running or the
// session is not initialized yet. Pending requests coalesce into one.
func (s *Scheduler) Request() {
	if s.current != nil || !s.session.ready {
		s.pending = true
		return
	}
	s.start()
}

func (s *Scheduler) start() {
	s.pending = false
	s.passSeq++
	s.session.passes++

	p := &pass{
		epoch:   s.session.Epoch(),
		items:   s.page.QueryCandidates(s.cfg.CandidateSelectors),
		started: time.Now(),
	}
	p.summary.Pass = s.passSeq
	p.summary.Candidates = len(p.items)
	s.current = p

	logrus.Debugf("[RECONCILE] Pass %d started with %d candidates", p.summary.Pass, len(p.items))
	s.runSlice(p)
}

func (s *Scheduler) runSlice(p *pass) {
	if p.epoch != s.session.Epoch() {
		p.summary.Abandoned = true
		s.finish(p)
		return
	}

	end := min(p.index+s.cfg.ChunkSize, len(p.items))
	for _, item := range p.items[p.index:end] {
		s.visit(p, item)
	}
	p.index = end
	p.summary.Slices++

	if p.index < len(p.items) {
		s.loop.Yield(taskloop.Task{
			Name: "reconcile.slice",
			Run: func(ctx context.Context) error {
				s.runSlice(p)
				return nil
			},
		})
		return
	}
	s.finish(p)
}

func (s *Scheduler) visit(p *pass, item domainReconcile.Item) {
	code, ok := s.page.ExtractVendorCode(item)
	if !ok || code == "" {
		p.summary.NoCode++
		metrics.CountCandidate("no_code")
		return
	}
	if s.session.isHandled(code) {
		p.summary.Duplicates++
		metrics.CountCandidate("duplicate")
		return
	}

	id := s.session.assign(item.Identity)
	s.session.markProcessed(id)

	rating, skipped := s.rating(item)
	if skipped {
		p.summary.RatingsSkipped++
	}
	key := domainReconcile.DecorationKey{
		VendorCode:   code,
		RatingBucket: domainReconcile.RatingBucket(rating.Value, rating.OK),
		IsPaired:     s.session.isPaired(code),
		IsHighRated:  rating.OK && rating.Value >= s.cfg.HighRating,
	}
	if s.session.isDecorated(key) {
		p.summary.Duplicates++
		metrics.CountCandidate("duplicate")
		return
	}

	container, ok := s.container(item, code)
	if !ok {
		p.summary.NoContainer++
		metrics.CountCandidate("no_container")
		return
	}
	if s.session.containerDecorated(container.identity) {
		p.summary.Duplicates++
		metrics.CountCandidate("duplicate")
		return
	}

	if err := s.page.Decorate(container.handle, key); err != nil {
		// The handle may be stale after a re-render; resolve it again next time.
		delete(s.session.containers, item.Identity)
		p.summary.Failed++
		metrics.CountCandidate("failed")
		logrus.Warnf("[RECONCILE] Decorating %s failed: %v", code, err)
		return
	}
	s.session.markDecorated(key, container.identity)
	p.summary.Decorated++
	metrics.CountCandidate("decorated")
}

// rating reads the candidate's rating through the fingerprint cache. Past the
// rating cap extraction is skipped and the candidate is treated as unrated.
func (s *Scheduler) rating(item domainReconcile.Item) (Rating, bool) {
	if s.cfg.RatingCap > 0 && s.session.processedCount() > s.cfg.RatingCap {
		return Rating{}, true
	}

	fp := s.page.Fingerprint(item)
	if fp != "" {
		if r, ok := s.ratings.Get(fp); ok {
			return r, false
		}
	}
	v, ok := s.page.ExtractRating(item)
	r := Rating{Value: v, OK: ok}
	if fp != "" {
		s.ratings.Set(fp, r)
	}
	return r, false
}

// container resolves the candidate's wrapper, memoized per identity for the epoch.
// Misses are not memoized so content rendered later can still resolve. A memo
// made for another vendor belongs to markup that has since been re-rendered.
func (s *Scheduler) container(item domainReconcile.Item, code string) (containerRef, bool) {
	if ref, ok := s.session.containers[item.Identity]; ok {
		if ref.code == code {
			return ref, true
		}
		delete(s.session.containers, item.Identity)
	}
	handle, ok := s.page.FindContainer(item, s.cfg.ContainerFallbacks)
	if !ok {
		return containerRef{}, false
	}
	ref := containerRef{handle: handle, identity: s.page.ContainerIdentity(handle), code: code}
	s.session.containers[item.Identity] = ref
	return ref, true
}

func (s *Scheduler) finish(p *pass) {
	p.summary.Duration = time.Since(p.started)
	s.current = nil

	summary := p.summary
	metrics.ObservePass(summary.Duration)
	if !summary.Abandoned {
		s.session.lastPass = &summary
	}

	if summary.Abandoned {
		logrus.Debugf("[RECONCILE] Pass %d abandoned after epoch reset", summary.Pass)
	} else {
		logrus.Debugf("[RECONCILE] Pass %d done: %d decorated, %d duplicates, %d without code in %s",
			summary.Pass, summary.Decorated, summary.Duplicates, summary.NoCode, summary.Duration)
	}
	s.publish(domainReconcile.Event{
		Type: domainReconcile.EventPassCompleted,
		Pass: &summary,
	})

	if s.pending {
		s.Request()
	}
}

func (s *Scheduler) publish(e domainReconcile.Event) {
	if s.sink == nil {
		return
	}
	e.EpochID = s.session.ID()
	e.Location = s.session.Location()
	e.At = time.Now().UTC()
	s.sink.Publish(e)
}
