package utils

import (
	"strings"
)

const (
	UserServer      = "s.whatsapp.net"
	GroupServer     = "g.us"
	BroadcastServer = "broadcast"
	NewsletterSvr   = "newsletter"
	LIDServer       = "lid"
)

// JIDUser returns the user part of a WhatsApp JID: "5511988887777:12@s.whatsapp.net"
// becomes "5511988887777". Plain phone numbers are returned trimmed.
func JIDUser(jid string) string {
	user := strings.TrimSpace(jid)
	if at := strings.IndexByte(user, '@'); at >= 0 {
		user = user[:at]
	}
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}
	return user
}

func JIDServer(jid string) string {
	if at := strings.LastIndexByte(jid, '@'); at >= 0 {
		return strings.ToLower(jid[at+1:])
	}
	return ""
}

func IsGroupJID(jid string) bool {
	return JIDServer(jid) == GroupServer
}

// IsBroadcastJID reports status updates, broadcast lists and channels, none of
// which map to a single contact.
func IsBroadcastJID(jid string) bool {
	server := JIDServer(jid)
	return server == BroadcastServer || server == NewsletterSvr || strings.HasPrefix(jid, "status@")
}

func IsLIDJID(jid string) bool {
	return JIDServer(jid) == LIDServer
}

// OnlyDigits strips every non digit rune.
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneVariants lists the spellings a stored phone may have for the given
// number, most literal first: as received, without "+", with "+", and with the
// country code removed or added. The add/remove rule assumes national numbers
// of 10 or 11 digits, which holds for Brazil (55). The optional mobile "9"
// digit is not expanded.
func PhoneVariants(phone, countryCode string) []string {
	raw := strings.TrimSpace(JIDUser(phone))
	digits := OnlyDigits(raw)
	if digits == "" {
		return nil
	}

	out := make([]string, 0, 6)
	seen := make(map[string]struct{}, 6)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(raw)
	add(digits)
	add("+" + digits)

	cc := OnlyDigits(countryCode)
	if cc == "" {
		return out
	}
	national := len(digits) - len(cc)
	switch {
	case strings.HasPrefix(digits, cc) && national >= 10 && national <= 11:
		add(digits[len(cc):])
	case len(digits) == 10 || len(digits) == 11:
		add(cc + digits)
		add("+" + cc + digits)
	}
	return out
}
