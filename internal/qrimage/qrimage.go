// Package qrimage renders QR payloads for the terminal and for disk.
package qrimage

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Render returns the payload as a terminal block image. Two characters per
// module keeps the aspect ratio roughly square in a monospace font.
func Render(payload string) (string, error) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qrimage.Render: %w", err)
	}

	bitmap := qr.Bitmap()
	var b strings.Builder
	for _, row := range bitmap {
		for _, dark := range row {
			if dark {
				b.WriteString("██")
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// WritePNG saves the payload as a PNG at path.
func WritePNG(payload, path string, size int) error {
	if size <= 0 {
		size = 256
	}
	if err := qrcode.WriteFile(payload, qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("qrimage.WritePNG: %w", err)
	}
	return nil
}
