// Package ocr adapts the Tesseract engine to the extract.OCREngine port.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract wraps one shared gosseract client. The client is not safe for
// concurrent use, so recognition is serialized; workers block here the same
// way they block on network I/O.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract constructs the engine and verifies it with a smoke
// recognition, so a broken installation aborts the run before any crawling
// begins.
func NewTesseract(languages []string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set ocr languages: %w", err)
		}
	}

	t := &Tesseract{client: client}
	if err := t.smokeTest(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ocr engine self-check: %w", err)
	}
	return t, nil
}

// Recognize returns the text lines found on one raster image.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set ocr image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

// Close releases the engine.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.Close(); err != nil {
		return fmt.Errorf("close ocr client: %w", err)
	}
	return nil
}

// smokeTest feeds a tiny blank image through the full pipeline. Blank input
// must recognize cleanly as empty.
func (t *Tesseract) smokeTest() error {
	blank := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			blank.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, blank); err != nil {
		return fmt.Errorf("encode probe image: %w", err)
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("set probe image: %w", err)
	}
	if _, err := t.client.Text(); err != nil {
		return fmt.Errorf("probe recognition: %w", err)
	}
	return nil
}
