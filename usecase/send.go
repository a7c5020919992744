package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	"github.com/AzielCF/az-wacrm/pkg/utils"
	"github.com/AzielCF/az-wacrm/validations"
)

type serviceSend struct {
	instance string
	sender   domainGateway.IMessageSender
	contacts *ContactResolver
	messages domainMessage.IMessageRepository
	now      func() time.Time
}

// NewSendService should get the same ContactResolver as the webhook processor
// so both directions share one lead cache.
func NewSendService(instance string, sender domainGateway.IMessageSender, contacts *ContactResolver, messages domainMessage.IMessageRepository) domainMessage.ISendUsecase {
	return &serviceSend{
		instance: instance,
		sender:   sender,
		contacts: contacts,
		messages: messages,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (service serviceSend) Send(ctx context.Context, actingUser string, request domainMessage.SendMessageRequest) (domainMessage.GenericResponse, error) {
	if err := validations.ValidateSendMessage(ctx, request); err != nil {
		return domainMessage.GenericResponse{}, err
	}

	phone := utils.OnlyDigits(request.Phone)
	outgoing := domainGateway.OutgoingMessage{Number: phone, Text: request.Text}
	msgType := domainMessage.TypeText
	if strings.TrimSpace(request.MediaURL) != "" {
		outgoing.Media = &domainGateway.SendMediaRequest{
			MediaType: domainGateway.MediaType(request.MediaType),
			MimeType:  request.MimeType,
			Caption:   firstNonBlank(request.Caption, request.Text),
			Media:     request.MediaURL,
			FileName:  request.FileName,
		}
		msgType = domainMessage.Type(request.MediaType)
	}

	result, err := service.sender.SendWhatsAppMessage(ctx, service.instance, outgoing)
	if err != nil {
		return domainMessage.GenericResponse{}, err
	}

	log := logrus.WithFields(logrus.Fields{"message_id": result.MessageID, "phone": phone, "user": actingUser})
	log.Info("[SEND] message sent")

	lead, _, err := service.contacts.Resolve(ctx, service.instance, phone+"@s.whatsapp.net", "")
	if err != nil {
		log.Errorf("[SEND] sent but could not resolve lead: %v", err)
		return domainMessage.GenericResponse{MessageID: result.MessageID, Status: string(domainMessage.StatusSent)}, nil
	}

	var text *string
	if body := firstNonBlank(request.Caption, request.Text); body != "" {
		text = &body
	}
	row := domainMessage.Message{
		ExternalID:   result.MessageID,
		LeadID:       lead.ID,
		TenantID:     lead.TenantID,
		InstanceName: service.instance,
		IsFromLead:   false,
		SenderID:     actingUser,
		TextContent:  text,
		Type:         msgType,
		MediaURL:     request.MediaURL,
		MimeType:     request.MimeType,
		FileName:     request.FileName,
		Status:       domainMessage.StatusSent,
		MessageAt:    service.now(),
	}
	if result.MessageID != "" {
		if _, err := service.messages.Create(ctx, &row); err != nil {
			log.Errorf("[SEND] sent but failed to store message: %v", err)
		}
	}

	return domainMessage.GenericResponse{
		MessageID: result.MessageID,
		LeadID:    lead.ID,
		Status:    string(domainMessage.StatusSent),
	}, nil
}
