package rest

import (
	"github.com/gofiber/fiber/v2"

	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

type Instance struct {
	Service domainInstance.IInstanceUsecase
}

func InitRestInstance(app fiber.Router, service domainInstance.IInstanceUsecase) Instance {
	handler := Instance{Service: service}
	app.Get("/instance", handler.GetStatus)
	app.Post("/instance", handler.PerformAction)
	return handler
}

// The UI reads the status shape directly, without the ResponseData envelope.
func (handler *Instance) GetStatus(c *fiber.Ctx) error {
	response, err := handler.Service.GetStatus(c.UserContext(), actingUser(c))
	utils.PanicIfNeeded(err)

	return c.JSON(response)
}

func (handler *Instance) PerformAction(c *fiber.Ctx) error {
	var request domainInstance.ActionRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body: " + err.Error()))
	}

	response, err := handler.Service.PerformAction(c.UserContext(), actingUser(c), request)
	utils.PanicIfNeeded(err)

	return c.JSON(response)
}

// actingUser is the basic-auth account name of the caller.
func actingUser(c *fiber.Ctx) string {
	if username, ok := c.Locals("username").(string); ok {
		return username
	}
	return ""
}
