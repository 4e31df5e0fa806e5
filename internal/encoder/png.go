package encoder

import (
	"bytes"
	"image"
	"image/png"
	"sync"
)

// PNGEncoder encodes screenshots as lossless PNG.
type PNGEncoder struct {
	enc png.Encoder
}

// NewPNGEncoder favours speed over size; screenshots are re-taken often.
func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{enc: png.Encoder{
		CompressionLevel: png.BestSpeed,
		BufferPool:       &bufferPool{},
	}}
}

func (e *PNGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(img.Pix) / 4)
	if err := e.enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *PNGEncoder) Format() string { return FormatPNG }

// bufferPool reuses the PNG encoder's scratch buffers between captures.
type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) { p.pool.Put(b) }
