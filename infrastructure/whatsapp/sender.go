package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

var _ domainGateway.IMessageSender = (*Bridge)(nil)

// SendWhatsAppMessage sends through the live socket. Media is fetched from its
// URL and uploaded before the message goes out.
func (b *Bridge) SendWhatsAppMessage(ctx context.Context, instance string, message domainGateway.OutgoingMessage) (domainGateway.SendResult, error) {
	b.mu.Lock()
	sock := b.live
	b.mu.Unlock()
	if sock == nil || !sock.client.IsConnected() || !sock.client.IsLoggedIn() {
		return domainGateway.SendResult{}, &pkgError.NotConnectedError{Instance: instance}
	}
	client := sock.client

	jid := types.NewJID(message.Number, types.DefaultUserServer)

	msg := &waE2E.Message{Conversation: proto.String(message.Text)}
	if message.Media != nil {
		var err error
		if msg, err = b.mediaMessage(ctx, client, message.Media); err != nil {
			return domainGateway.SendResult{}, err
		}
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return domainGateway.SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return domainGateway.SendResult{
		MessageID: resp.ID,
		RemoteJID: jid.String(),
		Status:    "sent",
	}, nil
}

func (b *Bridge) mediaMessage(ctx context.Context, client *whatsmeow.Client, media *domainGateway.SendMediaRequest) (*waE2E.Message, error) {
	res, err := b.media.Get(ctx, media.Media)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("fetch media: %w", res.Err)
	}
	data := res.Bytes()

	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = strings.TrimSpace(strings.Split(res.ContentType, ";")[0])
	}

	mediaType := uploadType(media.MediaType, mimeType)
	uploaded, err := client.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waE2E.Message{}
	switch mediaType {
	case whatsmeow.MediaImage:
		msg.ImageMessage = &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
		}
	case whatsmeow.MediaVideo:
		msg.VideoMessage = &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
		}
	case whatsmeow.MediaAudio:
		msg.AudioMessage = &waE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}
	default:
		msg.DocumentMessage = &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
			FileName:      proto.String(media.FileName),
		}
	}
	return msg, nil
}

// uploadType trusts the declared media type and falls back to the mimetype.
func uploadType(declared domainGateway.MediaType, mimeType string) whatsmeow.MediaType {
	switch declared {
	case domainGateway.MediaImage:
		return whatsmeow.MediaImage
	case domainGateway.MediaVideo:
		return whatsmeow.MediaVideo
	case domainGateway.MediaAudio:
		return whatsmeow.MediaAudio
	case domainGateway.MediaDocument:
		return whatsmeow.MediaDocument
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}
