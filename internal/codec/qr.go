package codec

import (
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"

	"njoy-gate/internal/status"
)

// DefaultQRSize is the pixel size used for exported documents.
const DefaultQRSize = 512

func newQR(code string, size int) (*qrcode.QRCode, error) {
	if code == "" {
		return nil, fmt.Errorf("encode qr: empty code: %w", status.ErrCodec)
	}
	if size <= 0 {
		return nil, fmt.Errorf("encode qr: size %d: %w", size, status.ErrCodec)
	}
	q, err := qrcode.New(code, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("encode qr: qrcode.New: %v: %w", err, status.ErrCodec)
	}
	return q, nil
}

// EncodeAsImage renders code as a square QR symbol with high error
// correction. The size only changes the resolution, never the symbol.
func EncodeAsImage(code string, size int) (image.Image, error) {
	q, err := newQR(code, size)
	if err != nil {
		return nil, err
	}
	return q.Image(size), nil
}

// EncodePNG is EncodeAsImage serialized as PNG.
func EncodePNG(code string, size int) ([]byte, error) {
	q, err := newQR(code, size)
	if err != nil {
		return nil, err
	}
	b, err := q.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: png: %v: %w", err, status.ErrCodec)
	}
	return b, nil
}

// Modules returns the module grid of the symbol for code, independent of any
// pixel size.
func Modules(code string) ([][]bool, error) {
	q, err := newQR(code, 1)
	if err != nil {
		return nil, err
	}
	return q.Bitmap(), nil
}
