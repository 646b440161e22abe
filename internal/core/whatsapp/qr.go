// internal/core/whatsapp/qr.go
package whatsapp

import (
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
)

// ClickToChatURL is the wa.me link that opens a chat with the given number.
func ClickToChatURL(e164, text string) string {
	link := "https://wa.me/" + phone.Digits(e164)
	if text != "" {
		link += "?text=" + url.QueryEscape(text)
	}
	return link
}

// ClickToChatQR renders the wa.me link as a PNG so donors can scan it from a
// poster at the donation center.
func ClickToChatQR(e164, text string, size int) ([]byte, error) {
	if e164 == "" {
		return nil, fmt.Errorf("phone is required")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(ClickToChatURL(e164, text), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}
	return png, nil
}
