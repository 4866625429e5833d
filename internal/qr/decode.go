// Package qr turns a QR code image into its payload string. Callers
// treat it as a black box; enrollment only needs the text out.
package qr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/phuslu/log"
)

// Decode extracts the payload from an encoded QR image (PNG or JPEG).
func Decode(buf []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("qr: decoding image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qr: preparing bitmap: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("qr: no QR code found: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("payload_len", len(result.GetText())).
		Msg("decoded QR payload")

	return result.GetText(), nil
}
