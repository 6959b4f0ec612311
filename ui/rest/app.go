package rest

import (
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// failure renders a data provider error with its user-facing status message
// instead of the raw transport detail.
func failure(c *fiber.Ctx, err error) error {
	res := utils.ResponseData{
		Status:  fiber.StatusInternalServerError,
		Code:    "INTERNAL_SERVER_ERROR",
		Message: pkgError.StatusMessage(err),
	}
	if g, ok := pkgError.AsGeneric(err); ok {
		res.Status = g.StatusCode()
		res.Code = g.ErrCode()
	}
	logrus.Warnf("[REST] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(res.Status).JSON(res)
}

func success(c *fiber.Ctx, message string, results any) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{
		Status:  fiber.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: err.Error(),
	})
}
