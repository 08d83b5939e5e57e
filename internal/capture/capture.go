// capture.go
//
// Image capture and JPEG normalization
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package capture turns camera frames, uploads and files into the JPEG data URLs the vision
// model and the history records use.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	// registered decoders for uploads
	_ "image/gif"
	_ "image/png"
)

// Quality is the JPEG quality of every capture
const Quality = 80

// MaxUploadBytes bounds an uploaded image before decoding
const MaxUploadBytes = 20 << 20

var (
	// ErrBusy is returned while another capture is in flight
	ErrBusy = errors.New("a capture is already in progress")
	// ErrUnsupported is returned for data that is not a JPEG, PNG or GIF image
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge is returned for uploads over MaxUploadBytes
	ErrTooLarge = errors.New("image is too large")
)

// FrameSource is a camera or any other producer of still frames
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Capturer produces data URLs, one capture at a time
type Capturer struct {
	// Debounce is how long a frame source is left to settle before the frame is taken
	Debounce time.Duration

	busy atomic.Bool
}

// New creates a Capturer with the given settle time for frame sources
func New(debounce time.Duration) *Capturer {
	return &Capturer{Debounce: debounce}
}

func (c *Capturer) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (c *Capturer) release() {
	c.busy.Store(false)
}

// FromSource waits Debounce, grabs one frame and encodes it
func (c *Capturer) FromSource(ctx context.Context, src FrameSource) (string, error) {
	if err := c.acquire(); err != nil {
		return "", err
	}
	defer c.release()

	if c.Debounce > 0 {
		timer := time.NewTimer(c.Debounce)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}

	frame, err := src.Frame(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to grab frame: %w", err)
	}
	return Encode(frame)
}

// FromReader decodes a JPEG, PNG or GIF upload and re-encodes it
func (c *Capturer) FromReader(ctx context.Context, r io.Reader) (string, error) {
	if err := c.acquire(); err != nil {
		return "", err
	}
	defer c.release()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return decodeAndEncode(r)
}

// FromFile captures an image file
func (c *Capturer) FromFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.FromReader(ctx, f)
}

// FromDataURL normalizes any image data URL (or bare base64) to a JPEG data URL
func (c *Capturer) FromDataURL(ctx context.Context, dataURL string) (string, error) {
	payload := strings.TrimSpace(dataURL)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return "", ErrUnsupported
		}
		payload = payload[comma+1:]
	}
	return c.FromReader(ctx, base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload)))
}

func decodeAndEncode(r io.Reader) (string, error) {
	limited := &io.LimitedReader{R: r, N: MaxUploadBytes + 1}
	img, _, err := image.Decode(limited)
	if err != nil {
		if limited.N <= 0 {
			return "", ErrTooLarge
		}
		if errors.Is(err, image.ErrFormat) {
			return "", ErrUnsupported
		}
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if limited.N <= 0 {
		return "", ErrTooLarge
	}
	return Encode(img)
}

// Encode writes img as a JPEG data URL
func Encode(img image.Image) (string, error) {
	// JPEG has no alpha; flatten paletted and transparent images onto an opaque canvas
	if _, opaque := img.(*image.YCbCr); !opaque {
		rgba := image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Over)
		img = rgba
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return "", fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
