package wapayload

import (
	"strings"
	"time"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
)

type QRUpdate struct {
	Code        string
	Base64      string
	PairingCode string
}

// QR returns the best renderable value: the image when the gateway sent one,
// the raw code otherwise.
func (q QRUpdate) QR() string {
	if q.Base64 != "" {
		return q.Base64
	}
	return q.Code
}

func ParseQRUpdate(data any) QRUpdate {
	if s, ok := data.(string); ok {
		return QRUpdate{Code: strings.TrimSpace(s)}
	}
	m, _ := data.(map[string]any)
	if inner := obj(m, "qrcode"); inner != nil {
		m = inner
	}
	return QRUpdate{
		Code:        str(m, "code", "qr"),
		Base64:      str(m, "base64"),
		PairingCode: str(m, "pairingCode"),
	}
}

type ConnectionChange struct {
	State        string
	StatusReason int
	ProfileName  string
	Number       string
}

// ParseConnectionUpdate reads {state, statusReason, wuid, profileName}. Some
// gateways send "connection" instead of "state".
func ParseConnectionUpdate(data any) ConnectionChange {
	m, _ := data.(map[string]any)
	change := ConnectionChange{
		State:       strings.ToLower(str(m, "state", "connection", "status")),
		ProfileName: str(m, "profileName", "pushName", "name"),
		Number:      str(m, "wuid", "number", "ownerJid"),
	}
	if reason, ok := number(m, "statusReason", "statusCode"); ok {
		change.StatusReason = int(reason)
	}
	return change
}

type StatusUpdate struct {
	ExternalID string
	RemoteJID  string
	FromMe     bool
	Status     domainMessage.Status
	// Reaction is nil when the update carries no reaction; an empty string
	// means the reaction was removed.
	Reaction *string
	// Timestamp is zero when the gateway did not send one.
	Timestamp time.Time
}

// ParseStatusUpdates accepts the flat {keyId, remoteJid, fromMe, status} form
// and the {key:{...}, update:{status}} form, single or batched. Reaction
// changes ride along in the same items.
func ParseStatusUpdates(data any) []StatusUpdate {
	var out []StatusUpdate
	for _, item := range Items(data, "messages", "updates") {
		key := obj(item, "key")
		update := obj(item, "update")

		su := StatusUpdate{
			ExternalID: firstNonEmpty(str(item, "keyId"), str(key, "id"), str(item, "messageId", "id")),
			RemoteJID:  firstNonEmpty(str(item, "remoteJid"), str(key, "remoteJid")),
		}
		if fromMe, ok := boolean(item, "fromMe"); ok {
			su.FromMe = fromMe
		} else {
			su.FromMe, _ = boolean(key, "fromMe")
		}

		status, ok := lookup(item, "status", "ack")
		if !ok {
			status, _ = lookup(update, "status", "ack")
		}
		su.Status = domainMessage.ParseStatus(status)

		var target map[string]any
		su.Reaction, target = reactionOf(item, update)
		if id := str(target, "id"); id != "" {
			su.ExternalID = id
			su.RemoteJID = firstNonEmpty(str(target, "remoteJid"), su.RemoteJID)
			su.FromMe, _ = boolean(target, "fromMe")
		}

		if ts, ok := lookup(item, "dateTime", "timestamp", "messageTimestamp"); ok {
			su.Timestamp, _ = ParseTimestamp(ts)
		}
		if su.ExternalID == "" {
			continue
		}
		out = append(out, su)
	}
	return out
}

// reactionOf reads a reaction from update.reactions, a reaction object next
// to the key, or a reactionMessage. Only reactionMessage names the reacted
// message itself; it is returned as target.
func reactionOf(item, update map[string]any) (reaction *string, target map[string]any) {
	if v, ok := lookup(update, "reactions"); ok {
		if list, ok := v.([]any); ok && len(list) > 0 {
			last, _ := list[len(list)-1].(map[string]any)
			emoji := str(last, "text")
			return &emoji, nil
		}
	}
	for _, m := range []map[string]any{item, update} {
		if r := obj(m, "reaction"); r != nil {
			emoji := str(r, "text")
			return &emoji, nil
		}
		if r := obj(obj(m, "message"), "reactionMessage"); r != nil {
			emoji := str(r, "text")
			return &emoji, obj(r, "key")
		}
	}
	return nil, nil
}

type ContactInfo struct {
	JID  string
	Name string
}

func ParseContacts(data any) []ContactInfo {
	var out []ContactInfo
	for _, item := range Items(data, "contacts", "chats") {
		jid := str(item, "remoteJid", "id", "jid")
		if jid == "" {
			continue
		}
		out = append(out, ContactInfo{
			JID:  jid,
			Name: str(item, "pushName", "name", "notify", "verifiedName"),
		})
	}
	return out
}

type DeleteRef struct {
	ExternalID string
	RemoteJID  string
	FromMe     bool
}

func ParseDeletes(data any) []DeleteRef {
	var out []DeleteRef
	for _, item := range Items(data, "keys", "messages") {
		key := obj(item, "key")
		if key == nil {
			key = item
		}
		ref := DeleteRef{
			ExternalID: firstNonEmpty(str(key, "id"), str(item, "keyId", "messageId")),
			RemoteJID:  str(key, "remoteJid"),
		}
		ref.FromMe, _ = boolean(key, "fromMe")
		if ref.ExternalID != "" {
			out = append(out, ref)
		}
	}
	return out
}
