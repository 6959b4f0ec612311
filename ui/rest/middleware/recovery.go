package middleware

import (
	"fmt"

	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				if asErr, ok := err.(error); ok {
					if generic, isGeneric := pkgError.AsGeneric(asErr); isGeneric {
						res.Status = generic.StatusCode()
						res.Code = generic.ErrCode()
						res.Message = generic.Error()
					}
				}

				if res.Status >= 500 {
					logrus.Errorf("[REST] panic recovered on %s %s: %v", ctx.Method(), ctx.Path(), err)
				} else {
					logrus.Debugf("[REST] %s %s rejected: %v", ctx.Method(), ctx.Path(), err)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
