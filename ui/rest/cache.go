package rest

import (
	domainCache "github.com/AzielCF/az-compare/domains/cache"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Cache struct {
	Service domainCache.ICacheUsecase
}

type clearRequest struct {
	Name string `json:"name"`
}

func InitRestCache(app fiber.Router, service domainCache.ICacheUsecase) Cache {
	rest := Cache{Service: service}
	app.Get("/cache/stats", rest.GetStats)
	app.Post("/cache/clear", rest.Clear)

	return rest
}

func (handler *Cache) GetStats(c *fiber.Ctx) error {
	stats, err := handler.Service.GetStats(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache stats retrieved",
		Results: stats,
	})
}

// Clear empties one named cache, or all of them when no name is given.
func (handler *Cache) Clear(c *fiber.Ctx) error {
	var request clearRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return badRequest(c, err)
		}
	}

	if request.Name == "" {
		utils.PanicIfNeeded(handler.Service.ClearAll(c.UserContext()))
		return c.JSON(utils.ResponseData{
			Status:  200,
			Code:    "SUCCESS",
			Message: "All caches cleared successfully",
		})
	}

	utils.PanicIfNeeded(handler.Service.Clear(c.UserContext(), request.Name))
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache " + request.Name + " cleared successfully",
	})
}
