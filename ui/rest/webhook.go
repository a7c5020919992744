package rest

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/msgworker"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

type Webhook struct {
	Service domainWebhook.IWebhookUsecase
	// Pool runs events in the background keyed by instance; nil processes inline.
	Pool *msgworker.WorkerPool
	// APIKey, when set, must match the apikey field of every delivery.
	APIKey          string
	DefaultInstance string
}

// InitRestWebhook mounts the gateway callback at path. It sits outside the
// basic-auth group: the gateway authenticates with the apikey field instead.
func InitRestWebhook(router fiber.Router, path string, handler Webhook) Webhook {
	router.Post(path, handler.Receive)
	return handler
}

func (handler *Webhook) Receive(c *fiber.Ctx) error {
	var event domainWebhook.Event
	if err := c.BodyParser(&event); err != nil {
		logrus.Warnf("[WEBHOOK] unreadable delivery: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{
			Status:  fiber.StatusBadRequest,
			Code:    "BAD_REQUEST",
			Message: "invalid webhook payload",
		})
	}

	if handler.APIKey != "" && subtle.ConstantTimeCompare([]byte(event.APIKey), []byte(handler.APIKey)) != 1 {
		err := pkgError.UnauthorizedError("invalid webhook api key")
		return c.Status(err.StatusCode()).JSON(utils.ResponseData{
			Status:  err.StatusCode(),
			Code:    err.ErrCode(),
			Message: err.Error(),
		})
	}
	if strings.TrimSpace(event.Instance) == "" {
		event.Instance = handler.DefaultInstance
	}

	if handler.Pool == nil {
		handler.process(c.UserContext(), event)
	} else {
		accepted := handler.Pool.TryDispatch(msgworker.Job{
			Key:  event.Instance,
			Name: event.Event,
			Handler: func(ctx context.Context) error {
				handler.process(ctx, event)
				return nil
			},
		})
		if !accepted {
			// Nothing was applied, so the gateway's redelivery is safe.
			logrus.WithField("instance", event.Instance).Errorf("[WEBHOOK] dispatch queue full, asking the gateway to retry %s", event.Event)
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
				Status:  fiber.StatusServiceUnavailable,
				Code:    "QUEUE_FULL",
				Message: "webhook queue is full, retry later",
			})
		}
	}

	return c.JSON(fiber.Map{"received": true})
}

func (handler *Webhook) process(ctx context.Context, event domainWebhook.Event) {
	if err := handler.Service.ProcessEvent(ctx, event); err != nil {
		logrus.WithField("instance", event.Instance).Warnf("[WEBHOOK] %s rejected: %v", event.Event, err)
	}
}
