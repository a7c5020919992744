package wapayload

import (
	"fmt"
	"strings"
	"time"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

type Dialect string

const (
	// DialectFlat carries a top-level "type" tag with body/caption/url beside it.
	DialectFlat Dialect = "flat"
	// DialectNested keys the content object by its type ("conversation", "imageMessage", ...).
	DialectNested Dialect = "nested"
)

// NormalizedMessage is the dialect-independent view of one inbound or
// outbound WhatsApp message.
type NormalizedMessage struct {
	ExternalID   string
	ChatJID      string
	From         string
	FromMe       bool
	PushName     string
	Timestamp    time.Time
	TextContent  *string
	Type         domainMessage.Type
	MediaURL     string
	MimeType     string
	FileName     string
	ReactionToID string
	Protocol     bool
	Dialect      Dialect
}

// IsFromLead is the stored direction flag.
func (m NormalizedMessage) IsFromLead() bool {
	return !m.FromMe
}

type Options struct {
	GatewayBaseURL string
	Now            func() time.Time
}

// Parse extracts a NormalizedMessage from one raw message object. It is pure:
// the only inputs are raw and opts. A missing id or sender yields a
// *pkgError.MalformedPayloadError.
func Parse(raw map[string]any, opts Options) (*NormalizedMessage, error) {
	if raw == nil {
		return nil, &pkgError.MalformedPayloadError{Reason: "empty message object"}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	key := obj(raw, "key")
	msg := &NormalizedMessage{
		ExternalID: firstNonEmpty(str(key, "id"), str(raw, "keyId", "id", "messageId"), str(obj(raw, "id"), "id", "_serialized")),
		PushName:   str(raw, "pushName", "notifyName"),
		Type:       domainMessage.TypeUnknown,
	}
	if fromMe, ok := boolean(key, "fromMe"); ok {
		msg.FromMe = fromMe
	} else {
		msg.FromMe, _ = boolean(raw, "fromMe")
	}

	msg.ChatJID = firstNonEmpty(str(key, "remoteJid"), str(raw, "remoteJid", "chatId"))
	msg.From = senderOf(raw, key, msg)
	if msg.ChatJID == "" {
		msg.ChatJID = msg.From
	}

	if msg.ExternalID == "" {
		return nil, &pkgError.MalformedPayloadError{Reason: "message without id"}
	}
	if msg.From == "" {
		return nil, &pkgError.MalformedPayloadError{MessageID: msg.ExternalID, Reason: "message without sender"}
	}

	if ts, ok := lookup(raw, "messageTimestamp", "timestamp", "t"); ok {
		msg.Timestamp, ok = ParseTimestamp(ts)
		if !ok {
			msg.Timestamp = now().UTC()
		}
	} else {
		msg.Timestamp = now().UTC()
	}

	if str(raw, "type") != "" {
		msg.Dialect = DialectFlat
		parseFlat(raw, msg)
	} else {
		msg.Dialect = DialectNested
		parseNested(raw, msg)
	}

	msg.MediaURL = AbsoluteMediaURL(msg.MediaURL, opts.GatewayBaseURL)
	return msg, nil
}

// senderOf picks the identifier used for contact resolution. For messages we
// sent it is the chat; LID chats carry the phone JID in senderPn or remoteJidAlt.
func senderOf(raw, key map[string]any, msg *NormalizedMessage) string {
	if alt := firstNonEmpty(str(key, "senderPn", "remoteJidAlt"), str(raw, "senderPn")); alt != "" && utils.IsLIDJID(msg.ChatJID) {
		return alt
	}
	if msg.ChatJID != "" {
		return msg.ChatJID
	}
	if msg.FromMe {
		return str(raw, "to", "from")
	}
	return str(raw, "from", "author", "sender")
}

func parseFlat(raw map[string]any, msg *NormalizedMessage) {
	kind := strings.ToLower(str(raw, "type"))
	body := text(raw, "body", "text")
	caption := text(raw, "caption")

	msg.MimeType = str(raw, "mimetype", "mimeType")
	msg.FileName = str(raw, "filename", "fileName")
	msg.MediaURL = str(raw, "mediaUrl", "url", "deprecatedMms3Url")

	switch kind {
	case "chat", "text", "conversation", "extendedtext":
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(body)
	case "image":
		msg.Type = domainMessage.TypeImage
		msg.TextContent = textPtr(caption)
	case "video", "gif":
		msg.Type = domainMessage.TypeVideo
		msg.TextContent = textPtr(caption)
	case "audio", "ptt", "voice":
		msg.Type = domainMessage.TypeAudio
	case "document", "file":
		msg.Type = domainMessage.TypeDocument
		msg.TextContent = textPtr(caption)
	case "sticker":
		msg.Type = domainMessage.TypeSticker
	case "reaction":
		msg.Type = domainMessage.TypeReaction
		msg.TextContent = textPtr(firstNonEmpty(str(raw, "reactionText"), body))
		msg.ReactionToID = str(raw, "parentMsgId", "reactionParentKey")
	case "location", "live_location":
		msg.Type = domainMessage.TypeLocation
		lat, _ := number(raw, "lat", "latitude")
		lng, _ := number(raw, "lng", "longitude")
		msg.TextContent = textPtr(formatLocation(str(raw, "loc", "name"), lat, lng))
	case "vcard", "multi_vcard", "contact":
		msg.Type = domainMessage.TypeContact
		msg.TextContent = textPtr(firstNonEmpty(str(raw, "vcardFormattedName", "displayName"), body))
	case "protocol", "revoked", "e2e_notification", "notification_template", "gp2", "call_log":
		msg.Protocol = true
	default:
		msg.TextContent = textPtr(firstNonEmpty(caption, body))
	}
}

var wrapperKeys = []string{
	"ephemeralMessage",
	"viewOnceMessage",
	"viewOnceMessageV2",
	"viewOnceMessageV2Extension",
	"documentWithCaptionMessage",
	"editedMessage",
}

func unwrap(content map[string]any) map[string]any {
	for depth := 0; depth < 4 && content != nil; depth++ {
		wrapped := false
		for _, k := range wrapperKeys {
			if inner := obj(obj(content, k), "message"); inner != nil {
				content = inner
				wrapped = true
				break
			}
		}
		if !wrapped {
			break
		}
	}
	return content
}

func parseNested(raw map[string]any, msg *NormalizedMessage) {
	content := unwrap(obj(raw, "message"))
	if content == nil {
		return
	}

	mediaOverride := firstNonEmpty(str(content, "mediaUrl"), str(raw, "mediaUrl"))

	switch {
	case str(content, "conversation") != "":
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(text(content, "conversation"))
	case obj(content, "extendedTextMessage") != nil:
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(text(obj(content, "extendedTextMessage"), "text"))
	case obj(content, "imageMessage") != nil:
		setMedia(msg, domainMessage.TypeImage, obj(content, "imageMessage"))
	case obj(content, "videoMessage") != nil:
		setMedia(msg, domainMessage.TypeVideo, obj(content, "videoMessage"))
	case obj(content, "ptvMessage") != nil:
		setMedia(msg, domainMessage.TypeVideo, obj(content, "ptvMessage"))
	case obj(content, "audioMessage") != nil:
		setMedia(msg, domainMessage.TypeAudio, obj(content, "audioMessage"))
		msg.TextContent = nil
	case obj(content, "documentMessage") != nil:
		doc := obj(content, "documentMessage")
		setMedia(msg, domainMessage.TypeDocument, doc)
		msg.FileName = firstNonEmpty(str(doc, "fileName"), str(doc, "title"))
	case obj(content, "stickerMessage") != nil:
		setMedia(msg, domainMessage.TypeSticker, obj(content, "stickerMessage"))
		msg.TextContent = nil
	case obj(content, "reactionMessage") != nil:
		reaction := obj(content, "reactionMessage")
		msg.Type = domainMessage.TypeReaction
		msg.TextContent = textPtr(str(reaction, "text"))
		msg.ReactionToID = str(obj(reaction, "key"), "id")
	case obj(content, "locationMessage") != nil || obj(content, "liveLocationMessage") != nil:
		loc := obj(content, "locationMessage", "liveLocationMessage")
		lat, _ := number(loc, "degreesLatitude")
		lng, _ := number(loc, "degreesLongitude")
		msg.Type = domainMessage.TypeLocation
		msg.TextContent = textPtr(formatLocation(firstNonEmpty(str(loc, "name"), str(loc, "address")), lat, lng))
	case obj(content, "contactMessage") != nil:
		msg.Type = domainMessage.TypeContact
		msg.TextContent = textPtr(str(obj(content, "contactMessage"), "displayName"))
	case obj(content, "contactsArrayMessage") != nil:
		arr := obj(content, "contactsArrayMessage")
		msg.Type = domainMessage.TypeContact
		msg.TextContent = textPtr(firstNonEmpty(str(arr, "displayName"), contactNames(arr)))
	case obj(content, "buttonsResponseMessage") != nil:
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(str(obj(content, "buttonsResponseMessage"), "selectedDisplayText"))
	case obj(content, "listResponseMessage") != nil:
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(str(obj(content, "listResponseMessage"), "title"))
	case obj(content, "templateButtonReplyMessage") != nil:
		msg.Type = domainMessage.TypeText
		msg.TextContent = textPtr(str(obj(content, "templateButtonReplyMessage"), "selectedDisplayText"))
	case obj(content, "protocolMessage") != nil:
		msg.Protocol = true
	}

	if mediaOverride != "" && msg.Type.IsMedia() {
		msg.MediaURL = mediaOverride
	}
}

func setMedia(msg *NormalizedMessage, t domainMessage.Type, media map[string]any) {
	msg.Type = t
	msg.TextContent = textPtr(text(media, "caption"))
	msg.MimeType = str(media, "mimetype")
	msg.FileName = str(media, "fileName")
	msg.MediaURL = str(media, "url")
}

func contactNames(arr map[string]any) string {
	list, _ := arr["contacts"].([]any)
	names := make([]string, 0, len(list))
	for _, c := range list {
		if m, ok := c.(map[string]any); ok {
			if n := str(m, "displayName"); n != "" {
				names = append(names, n)
			}
		}
	}
	return strings.Join(names, ", ")
}

func formatLocation(name string, lat, lng float64) string {
	coords := fmt.Sprintf("%.6f,%.6f", lat, lng)
	if name == "" {
		return coords
	}
	return name + " (" + coords + ")"
}

func textPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
