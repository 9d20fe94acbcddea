package core

import (
	"net/mail"
	"strings"
)

type (
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain content
		TextContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// ParseAddressList parses a comma separated list of addresses, skipping invalid ones.
func ParseAddressList(list string) []mail.Address {
	addrs := make([]mail.Address, 0)
	for _, s := range strings.Split(list, ",") {
		if s = CleanString(s); s == "" {
			continue
		}
		if addr, err := mail.ParseAddress(s); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}

func (m *EmailMessage) Render() {
	if m.TextContent == "" {
		m.TextContent = m.BodyStr
	}
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }
