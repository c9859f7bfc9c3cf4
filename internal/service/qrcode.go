package service

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// CodeRenderer turns a raw pairing code into a displayable image reference.
type CodeRenderer interface {
	Render(code string) (string, error)
}

// QRCodeRenderer renders pairing codes as PNG data URLs.
type QRCodeRenderer struct {
	level qrcode.RecoveryLevel
	size  int
}

func NewQRCodeRenderer() *QRCodeRenderer {
	return &QRCodeRenderer{level: qrcode.Medium, size: qrCodeSize}
}

func (r *QRCodeRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("render qr code: empty pairing code")
	}
	png, err := qrcode.Encode(code, r.level, r.size)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
