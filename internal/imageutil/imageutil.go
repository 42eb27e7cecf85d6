// Package imageutil validates and normalizes uploaded meat photos before
// they are sent to the vision model.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxEdge is the longest edge sent upstream. Larger photos are downscaled;
// model accuracy does not improve past this size but token cost does.
const MaxEdge = 1280

// jpegQuality matches the client-side capture quality.
const jpegQuality = 85

var allowedFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// Sniff decodes the image header and returns the detected media type. The
// declared media type from the request is advisory only; the bytes decide.
func Sniff(data []byte) (string, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image header: %w", err)
	}
	mediaType, ok := allowedFormats[format]
	if !ok {
		return "", fmt.Errorf("unsupported image format %q", format)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return "", fmt.Errorf("invalid image dimensions %dx%d", config.Width, config.Height)
	}
	return mediaType, nil
}

// Normalize returns image bytes ready for the model: images within MaxEdge
// pass through untouched, larger ones are downscaled and re-encoded as JPEG.
// The returned media type reflects the returned bytes.
func Normalize(data []byte, mediaType string) ([]byte, string, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if config.Width <= MaxEdge && config.Height <= MaxEdge {
		return data, mediaType, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	width, height := scaledDims(config.Width, config.Height)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func scaledDims(width, height int) (int, int) {
	if width >= height {
		scaled := height * MaxEdge / width
		if scaled < 1 {
			scaled = 1
		}
		return MaxEdge, scaled
	}
	scaled := width * MaxEdge / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, MaxEdge
}
