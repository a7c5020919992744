package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow"

	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

func TestUploadType(t *testing.T) {
	assert.Equal(t, whatsmeow.MediaImage, uploadType(domainGateway.MediaImage, "application/pdf"))
	assert.Equal(t, whatsmeow.MediaDocument, uploadType(domainGateway.MediaDocument, "image/png"))
	assert.Equal(t, whatsmeow.MediaVideo, uploadType("", "video/mp4"))
	assert.Equal(t, whatsmeow.MediaAudio, uploadType("", "audio/ogg; codecs=opus"))
	assert.Equal(t, whatsmeow.MediaDocument, uploadType("", ""))
}

func TestSendWithoutSocket(t *testing.T) {
	b := &Bridge{}
	_, err := b.SendWhatsAppMessage(context.Background(), "crm", domainGateway.OutgoingMessage{Number: "5511988887777", Text: "oi"})

	var notConnected *pkgError.NotConnectedError
	assert.True(t, errors.As(err, &notConnected))
	assert.Equal(t, "crm", notConnected.Instance)
}
