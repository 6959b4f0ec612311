package rest

import (
	"time"

	"github.com/AzielCF/az-compare/infrastructure/notify"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventFeed is satisfied by *notify.Recorder.
type EventFeed interface {
	Stats() notify.RecorderStats
}

type Monitoring struct {
	startedAt time.Time
	version   string
	events    EventFeed
}

// InitRestMonitoring registers the health check, the Prometheus endpoint and
// the recent event feed.
func InitRestMonitoring(app fiber.Router, version string, events EventFeed) Monitoring {
	rest := Monitoring{startedAt: time.Now(), version: version, events: events}
	app.Get("/health", rest.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/events", rest.Events)

	return rest
}

func (handler *Monitoring) Health(c *fiber.Ctx) error {
	return success(c, "OK", map[string]any{
		"version":    handler.version,
		"started_at": handler.startedAt,
		"uptime":     humanize.RelTime(handler.startedAt, time.Now(), "", ""),
	})
}

func (handler *Monitoring) Events(c *fiber.Ctx) error {
	if handler.events == nil {
		return success(c, "No events recorded", notify.RecorderStats{})
	}
	return success(c, "Recent events", handler.events.Stats())
}
