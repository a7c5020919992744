package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

// Recovery renders panics raised by utils.PanicIfNeeded. Errors implementing
// GenericError keep their own status and code; anything else is a 500.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				if appErr, ok := err.(pkgError.GenericError); ok {
					res.Status = appErr.StatusCode()
					res.Code = appErr.ErrCode()
					res.Message = appErr.Error()
				}

				if res.Status >= 500 {
					logrus.WithField("path", ctx.Path()).Errorf("[REST] request failed: %v", err)
				} else {
					logrus.WithField("path", ctx.Path()).Debugf("[REST] request rejected: %v", err)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
