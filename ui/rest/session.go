package rest

import (
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// LoopStats is satisfied by *taskloop.Loop.
type LoopStats interface {
	Stats() taskloop.Stats
}

type Session struct {
	Service domainReconcile.IReconcileUsecase
	Loop    LoopStats
}

// InitRestSession exposes the reconciliation session. service and loop are nil
// when the server runs without a document.
func InitRestSession(app fiber.Router, service domainReconcile.IReconcileUsecase, loop LoopStats) Session {
	rest := Session{Service: service, Loop: loop}
	app.Get("/session", rest.Snapshot)
	app.Get("/session/comparison", rest.Comparison)
	app.Post("/session/rescan", rest.Rescan)
	app.Get("/session/loop", rest.LoopStats)

	return rest
}

func noDocument(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
		Status:  fiber.StatusServiceUnavailable,
		Code:    "NO_DOCUMENT",
		Message: "Reconciliation engine is not running, start the server with --document",
	})
}

func (handler *Session) Snapshot(c *fiber.Ctx) error {
	if handler.Service == nil {
		return noDocument(c)
	}
	snapshot, err := handler.Service.Snapshot(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:   200,
		Code:     "SUCCESS",
		Message:  "Session snapshot",
		Results:  snapshot,
		Warnings: snapshot.Epoch.Warnings,
	})
}

func (handler *Session) Comparison(c *fiber.Ctx) error {
	if handler.Service == nil {
		return noDocument(c)
	}
	result, err := handler.Service.Comparison(c.UserContext())
	utils.PanicIfNeeded(err)
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(utils.ResponseData{
			Status:  fiber.StatusNotFound,
			Code:    "NO_COMPARISON",
			Message: "The current page has no vendor comparison",
		})
	}

	return success(c, "Session comparison", map[string]any{
		"mapping":   result.Mapping,
		"records":   result.Sorted(),
		"summary":   result.Summary,
		"unmatched": result.Unmatched,
	})
}

func (handler *Session) Rescan(c *fiber.Ctx) error {
	if handler.Service == nil {
		return noDocument(c)
	}
	utils.PanicIfNeeded(handler.Service.Rescan(c.UserContext()))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rescan requested",
	})
}

// LoopStats returns real-time task loop statistics.
func (handler *Session) LoopStats(c *fiber.Ctx) error {
	if handler.Loop == nil {
		return noDocument(c)
	}
	return c.JSON(handler.Loop.Stats())
}
