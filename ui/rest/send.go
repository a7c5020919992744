package rest

import (
	"github.com/gofiber/fiber/v2"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

type Send struct {
	Service domainMessage.ISendUsecase
}

func InitRestSend(app fiber.Router, service domainMessage.ISendUsecase) Send {
	handler := Send{Service: service}
	app.Post("/messages/send", handler.SendMessage)
	return handler
}

func (handler *Send) SendMessage(c *fiber.Ctx) error {
	var request domainMessage.SendMessageRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body: " + err.Error()))
	}

	response, err := handler.Service.Send(c.UserContext(), actingUser(c), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
		Results: response,
	})
}
