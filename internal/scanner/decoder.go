package scanner

import (
	"errors"
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var ErrNoPayload = errors.New("scanner: frame carries no payload")

// Decoder turns a frame into the raw text it encodes.
type Decoder interface {
	Decode(f Frame) (string, error)
}

// QRDecoder reads QR symbols out of image frames and passes text frames
// through untouched.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

func (d *QRDecoder) Decode(f Frame) (string, error) {
	if f.Image == nil {
		if f.Text == "" {
			return "", ErrNoPayload
		}
		return f.Text, nil
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(f.Image)
	if err != nil {
		return "", fmt.Errorf("decode frame %d: bitmap: %w", f.Seq, err)
	}
	// readers keep state between calls, so each frame gets its own
	res, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	return res.GetText(), nil
}
