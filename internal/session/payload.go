package session

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	pngDataURLPrefix = "data:image/png;base64,"

	WarnImageLoad   = "Failed to load QR code image"
	WarnInvalidData = "Invalid QR Code data"
)

// RenderPayload turns a code payload into a data URL the payer's screen can
// show. Base64 PNG payloads pass through; anything else is encoded as a QR
// code. A non-empty warning means the image could not be produced cleanly.
func RenderPayload(payload string) (dataURL, warning string) {
	declaredPNG := strings.HasPrefix(payload, pngDataURLPrefix)
	payload = strings.TrimPrefix(payload, pngDataURLPrefix)
	if payload == "" {
		return "", WarnInvalidData
	}

	if raw, err := base64.StdEncoding.DecodeString(payload); err == nil {
		if _, err := png.DecodeConfig(bytes.NewReader(raw)); err == nil {
			return pngDataURLPrefix + payload, ""
		}
	}
	if declaredPNG {
		warning = WarnImageLoad
	}

	img, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", WarnInvalidData
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(img), warning
}
