package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
)

// PlaceholderSize is the edge length of images rendered by PlaceholderProcessor
const PlaceholderSize = 64

// PlaceholderProcessor renders a small PNG whose colors are derived from the
// prompt. It stands in for a real model so the whole pipeline can run
// without a GPU.
type PlaceholderProcessor struct{}

// Process implements Processor
func (PlaceholderProcessor) Process(ctx context.Context, task Task) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt, _ := task.Payload.Get("prompt")
	text, _ := prompt.(string)

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()

	bands := 1 + int(paramInt(task, "steps", 50)%8)
	base := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	for y := 0; y < PlaceholderSize; y++ {
		shade := uint8(y * bands * 255 / PlaceholderSize)
		for x := 0; x < PlaceholderSize; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: base.R ^ shade,
				G: base.G ^ uint8(x*4),
				B: base.B,
				A: 0xff,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// paramInt reads a numeric parameter as decoded from a dispatch
func paramInt(task Task, name string, def int64) int64 {
	value, ok := task.Payload.Get(name)
	if !ok {
		return def
	}
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return def
}
