package usecase

import (
	"context"

	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
)

type notifyingWebhook struct {
	inner  domainWebhook.IWebhookUsecase
	notify func(ctx context.Context, instance string)
}

// WithConnectionNotifier calls notify after every QR or connection event has
// been stored, so listeners read the state the event produced.
func WithConnectionNotifier(inner domainWebhook.IWebhookUsecase, notify func(ctx context.Context, instance string)) domainWebhook.IWebhookUsecase {
	if notify == nil {
		return inner
	}
	return &notifyingWebhook{inner: inner, notify: notify}
}

func (n *notifyingWebhook) ProcessEvent(ctx context.Context, event domainWebhook.Event) error {
	err := n.inner.ProcessEvent(ctx, event)
	switch domainWebhook.NormalizeEventType(event.Event) {
	case domainWebhook.EventQRCodeUpdated, domainWebhook.EventConnectionUpdate:
		n.notify(ctx, event.Instance)
	}
	return err
}
