package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	domainLead "github.com/AzielCF/az-wacrm/domains/lead"
	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
	"github.com/AzielCF/az-wacrm/pkg/wapayload"
)

type WebhookConfig struct {
	TenantID        string
	DefaultInstance string
	GatewayBaseURL  string
}

type eventHandler func(ctx context.Context, event domainWebhook.Event) error

type serviceWebhook struct {
	cfg      WebhookConfig
	conns    domainConnection.IConnectionRepository
	messages domainMessage.IMessageRepository
	contacts *ContactResolver
	gateway  domainGateway.IGatewayService
	handlers map[string]eventHandler
	now      func() time.Time
}

// NewWebhookService builds the event processor. gateway may be nil; it is
// only used to fill in the profile when a connection opens without one.
func NewWebhookService(
	cfg WebhookConfig,
	contacts *ContactResolver,
	conns domainConnection.IConnectionRepository,
	messages domainMessage.IMessageRepository,
	gateway domainGateway.IGatewayService,
) domainWebhook.IWebhookUsecase {
	return newWebhookService(cfg, contacts, conns, messages, gateway)
}

func newWebhookService(
	cfg WebhookConfig,
	contacts *ContactResolver,
	conns domainConnection.IConnectionRepository,
	messages domainMessage.IMessageRepository,
	gateway domainGateway.IGatewayService,
) *serviceWebhook {
	if cfg.DefaultInstance == "" {
		cfg.DefaultInstance = "default"
	}
	service := &serviceWebhook{
		cfg:      cfg,
		conns:    conns,
		messages: messages,
		contacts: contacts,
		gateway:  gateway,
		now:      func() time.Time { return time.Now().UTC() },
	}
	service.handlers = map[string]eventHandler{
		domainWebhook.EventQRCodeUpdated:    service.handleQRCode,
		domainWebhook.EventConnectionUpdate: service.handleConnection,
		domainWebhook.EventMessagesUpsert:   service.handleUpsert,
		domainWebhook.EventMessagesUpdate:   service.handleStatusUpdate,
		domainWebhook.EventSendMessage:      service.handleSendConfirmation,
		domainWebhook.EventContactsUpsert:   service.handleContacts,
		domainWebhook.EventContactsUpdate:   service.handleContacts,
		domainWebhook.EventChatsUpsert:      service.handleContacts,
		domainWebhook.EventMessagesDelete:   service.handleDelete,
	}
	return service
}

func (service *serviceWebhook) ProcessEvent(ctx context.Context, event domainWebhook.Event) error {
	name := domainWebhook.NormalizeEventType(event.Event)
	if name == "" {
		return pkgError.ValidationError("event: cannot be blank")
	}
	if strings.TrimSpace(event.Instance) == "" {
		event.Instance = service.cfg.DefaultInstance
	}
	event.Event = name

	log := logrus.WithFields(logrus.Fields{"event": name, "instance": event.Instance})
	handler, ok := service.handlers[name]
	if !ok {
		log.Debug("[WEBHOOK] ignoring unhandled event")
		return nil
	}

	if err := service.safely(ctx, handler, event); err != nil {
		log.Errorf("[WEBHOOK] handler failed: %v", err)
	}
	return nil
}

// safely runs one handler, turning a panic into an error so one bad event
// never takes the dispatcher down.
func (service *serviceWebhook) safely(ctx context.Context, handler eventHandler, event domainWebhook.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Debugf("[WEBHOOK] panic stack: %s", debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

func (service *serviceWebhook) eventTime(event domainWebhook.Event) *time.Time {
	if event.DateTime != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z"} {
			if t, err := time.Parse(layout, event.DateTime); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	now := service.now()
	return &now
}

func (service *serviceWebhook) handleQRCode(ctx context.Context, event domainWebhook.Event) error {
	qr := wapayload.ParseQRUpdate(event.Data)
	if qr.QR() == "" {
		return &pkgError.MalformedPayloadError{Reason: "qr update without code"}
	}
	update := domainConnection.Update{
		Status:   domainConnection.StatusPtr(domainConnection.StatusQRReady),
		QRCode:   domainConnection.StringPtr(qr.QR()),
		TenantID: domainConnection.StringPtr(service.cfg.TenantID),
		EventAt:  service.eventTime(event),
	}
	if qr.PairingCode != "" {
		update.PairingCode = domainConnection.StringPtr(qr.PairingCode)
	}
	_, err := service.conns.Upsert(ctx, event.Instance, update)
	return err
}

func (service *serviceWebhook) handleConnection(ctx context.Context, event domainWebhook.Event) error {
	change := wapayload.ParseConnectionUpdate(event.Data)
	update := domainConnection.Update{
		TenantID: domainConnection.StringPtr(service.cfg.TenantID),
		EventAt:  service.eventTime(event),
	}

	switch change.State {
	case domainGateway.StateOpen:
		update.Status = domainConnection.StatusPtr(domainConnection.StatusConnected)
		update.Profile = service.profileFor(ctx, event.Instance, change)
	case domainGateway.StateConnecting:
		update.Status = domainConnection.StatusPtr(domainConnection.StatusConnecting)
	case domainGateway.StateClose:
		update.Status = domainConnection.StatusPtr(domainConnection.StatusDisconnected)
		switch {
		case change.StatusReason == 401:
			update.ErrorMessage = domainConnection.StringPtr("logged out")
			update.ClearProfile = true
		case change.StatusReason != 0 && change.StatusReason != 200:
			update.ErrorMessage = domainConnection.StringPtr(fmt.Sprintf("connection closed (reason %d)", change.StatusReason))
		}
	default:
		return &pkgError.MalformedPayloadError{Reason: fmt.Sprintf("unknown connection state %q", change.State)}
	}

	_, err := service.conns.Upsert(ctx, event.Instance, update)
	return err
}

func (service *serviceWebhook) profileFor(ctx context.Context, instance string, change wapayload.ConnectionChange) *domainConnection.Profile {
	if change.ProfileName != "" || change.Number != "" {
		return &domainConnection.Profile{Name: change.ProfileName, Number: utils.JIDUser(change.Number)}
	}
	if service.gateway == nil {
		return nil
	}
	profile, err := service.gateway.FetchProfile(ctx, instance)
	if err != nil {
		logrus.WithField("instance", instance).Warnf("[WEBHOOK] could not fetch profile: %v", err)
		return nil
	}
	return profile
}

func (service *serviceWebhook) parseOptions() wapayload.Options {
	return wapayload.Options{GatewayBaseURL: service.cfg.GatewayBaseURL, Now: service.now}
}

// handleUpsert stores inbound messages. Items are processed in order and a
// failing item never stops the rest of the batch.
func (service *serviceWebhook) handleUpsert(ctx context.Context, event domainWebhook.Event) error {
	items := wapayload.Messages(event.Data)
	own := service.ownNumber(ctx, event.Instance)
	var stored, skipped, failed int
	for i, raw := range items {
		ok, err := service.storeInbound(ctx, event.Instance, own, raw)
		switch {
		case err != nil:
			failed++
			logMessageError(event.Instance, i, raw, err)
		case ok:
			stored++
		default:
			skipped++
		}
	}
	logrus.WithFields(logrus.Fields{
		"instance": event.Instance,
		"stored":   stored,
		"skipped":  skipped,
		"failed":   failed,
	}).Debug("[WEBHOOK] messages.upsert processed")
	return nil
}

func logMessageError(instance string, index int, raw map[string]any, err error) {
	id := ""
	var malformed *pkgError.MalformedPayloadError
	if errors.As(err, &malformed) {
		id = malformed.MessageID
	}
	if id == "" {
		if key, ok := raw["key"].(map[string]any); ok {
			id, _ = key["id"].(string)
		}
	}
	logrus.WithFields(logrus.Fields{"instance": instance, "message_id": id, "index": index}).
		Errorf("[WEBHOOK] failed to process message: %v", err)
}

// ownNumber is the connected account's phone, empty when unknown.
func (service *serviceWebhook) ownNumber(ctx context.Context, instance string) string {
	conn, err := service.conns.Get(ctx, instance)
	if err != nil || conn.Profile == nil {
		return ""
	}
	return utils.OnlyDigits(utils.JIDUser(conn.Profile.Number))
}

// storeInbound skips our own echoes: fromMe, or a sender equal to own for
// gateways that leave fromMe out.
func (service *serviceWebhook) storeInbound(ctx context.Context, instance, own string, raw map[string]any) (bool, error) {
	msg, err := wapayload.Parse(raw, service.parseOptions())
	if err != nil {
		return false, err
	}
	if msg.Protocol || msg.FromMe || skipChat(msg.ChatJID) || skipChat(msg.From) {
		return false, nil
	}
	if own != "" && utils.OnlyDigits(utils.JIDUser(msg.From)) == own {
		return false, nil
	}

	exists, err := service.messages.Exists(ctx, msg.ExternalID, true)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	lead, _, err := service.contacts.Resolve(ctx, instance, msg.From, msg.PushName)
	if errors.Is(err, ErrGroupContact) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	row := service.toMessage(instance, lead, msg, domainMessage.StatusReceived)
	return service.messages.Create(ctx, &row)
}

func skipChat(jid string) bool {
	return utils.IsBroadcastJID(jid) || utils.IsGroupJID(jid)
}

func (service *serviceWebhook) toMessage(instance string, lead domainLead.Lead, msg *wapayload.NormalizedMessage, status domainMessage.Status) domainMessage.Message {
	return domainMessage.Message{
		ExternalID:   msg.ExternalID,
		LeadID:       lead.ID,
		TenantID:     lead.TenantID,
		InstanceName: instance,
		IsFromLead:   msg.IsFromLead(),
		SenderID:     utils.JIDUser(msg.From),
		TextContent:  msg.TextContent,
		Type:         msg.Type,
		MediaURL:     msg.MediaURL,
		MimeType:     msg.MimeType,
		FileName:     msg.FileName,
		Status:       status,
		MessageAt:    msg.Timestamp,
		ReactionToID: msg.ReactionToID,
	}
}

// handleStatusUpdate applies delivery receipts and reactions to the row with
// the same id and direction.
func (service *serviceWebhook) handleStatusUpdate(ctx context.Context, event domainWebhook.Event) error {
	for _, su := range wapayload.ParseStatusUpdates(event.Data) {
		log := logrus.WithFields(logrus.Fields{"instance": event.Instance, "message_id": su.ExternalID, "status": su.Status})
		at := su.Timestamp
		if at.IsZero() {
			at = service.now()
		}

		if su.Reaction != nil {
			found, err := service.messages.SetReaction(ctx, su.ExternalID, !su.FromMe, *su.Reaction, at)
			switch {
			case err != nil:
				log.Errorf("[WEBHOOK] failed to store reaction: %v", err)
			case !found:
				log.Debug("[WEBHOOK] reaction for unknown message")
			}
		}

		var err error
		var found bool
		switch su.Status {
		case domainMessage.StatusUnknown:
			if su.Reaction == nil {
				log.Debug("[WEBHOOK] ignoring unknown message status")
			}
			continue
		case domainMessage.StatusDeleted:
			var n int64
			n, err = service.messages.SoftDelete(ctx, su.ExternalID, !su.FromMe, at)
			found = n > 0
		default:
			found, err = service.messages.UpdateStatus(ctx, su.ExternalID, !su.FromMe, su.Status, at)
		}
		if err != nil {
			log.Errorf("[WEBHOOK] failed to update message status: %v", err)
			continue
		}
		if !found {
			log.Debug("[WEBHOOK] status update for unknown message")
		}
	}
	return nil
}

// handleSendConfirmation records messages the gateway reports as sent. Rows
// written by the send API already exist and are left alone.
func (service *serviceWebhook) handleSendConfirmation(ctx context.Context, event domainWebhook.Event) error {
	for i, raw := range wapayload.Messages(event.Data) {
		if err := service.storeOutbound(ctx, event.Instance, raw); err != nil {
			logMessageError(event.Instance, i, raw, err)
		}
	}
	return nil
}

func (service *serviceWebhook) storeOutbound(ctx context.Context, instance string, raw map[string]any) error {
	msg, err := wapayload.Parse(raw, service.parseOptions())
	if err != nil {
		return err
	}
	msg.FromMe = true
	if msg.Protocol || skipChat(msg.ChatJID) {
		return nil
	}

	exists, err := service.messages.Exists(ctx, msg.ExternalID, false)
	if err != nil || exists {
		return err
	}

	lead, _, err := service.contacts.Resolve(ctx, instance, msg.ChatJID, "")
	if errors.Is(err, ErrGroupContact) {
		return nil
	}
	if err != nil {
		return err
	}
	row := service.toMessage(instance, lead, msg, domainMessage.StatusSent)
	row.SenderID = instance
	_, err = service.messages.Create(ctx, &row)
	return err
}

// handleContacts corrects placeholder lead names. A name someone typed into
// the CRM is never overwritten.
func (service *serviceWebhook) handleContacts(ctx context.Context, event domainWebhook.Event) error {
	for _, contact := range wapayload.ParseContacts(event.Data) {
		if contact.Name == "" || skipChat(contact.JID) {
			continue
		}
		lead, err := service.contacts.Find(ctx, contact.JID)
		if err != nil {
			continue
		}
		if !domainLead.LooksAutoGenerated(lead.Name, lead.Phone) || domainLead.LooksAutoGenerated(contact.Name, lead.Phone) {
			continue
		}
		if err := service.contacts.Rename(ctx, lead, contact.Name); err != nil {
			logrus.WithField("lead_id", lead.ID).Errorf("[WEBHOOK] failed to rename lead: %v", err)
			continue
		}
		logrus.WithFields(logrus.Fields{"lead_id": lead.ID, "name": contact.Name}).Info("[WEBHOOK] lead name updated from contact")
	}
	return nil
}

func (service *serviceWebhook) handleDelete(ctx context.Context, event domainWebhook.Event) error {
	at := service.now()
	for _, ref := range wapayload.ParseDeletes(event.Data) {
		n, err := service.messages.SoftDelete(ctx, ref.ExternalID, !ref.FromMe, at)
		if err != nil {
			logrus.WithField("message_id", ref.ExternalID).Errorf("[WEBHOOK] failed to delete message: %v", err)
			continue
		}
		logrus.WithFields(logrus.Fields{"message_id": ref.ExternalID, "rows": n}).Debug("[WEBHOOK] message deleted")
	}
	return nil
}
