package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func makeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func makeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"jpeg", makeTestJPEG(t, 10, 10), "image/jpeg", false},
		{"png", makeTestPNG(t, 10, 10), "image/png", false},
		{"not an image", []byte("just some text"), "", true},
		{"empty", nil, "", true},
		{"truncated header", makeTestJPEG(t, 10, 10)[:4], "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("media type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_SmallImagePassesThrough(t *testing.T) {
	data := makeTestJPEG(t, 640, 480)

	out, mediaType, err := Normalize(data, "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Error("small image should pass through unmodified")
	}
	if mediaType != "image/jpeg" {
		t.Errorf("media type = %q, want image/jpeg", mediaType)
	}
}

func TestNormalize_LargeImageDownscaled(t *testing.T) {
	data := makeTestJPEG(t, 2000, 1000)

	out, mediaType, err := Normalize(data, "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "image/jpeg" {
		t.Errorf("media type = %q, want image/jpeg", mediaType)
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg", format)
	}
	if config.Width != MaxEdge || config.Height != MaxEdge/2 {
		t.Errorf("dimensions = %dx%d, want %dx%d", config.Width, config.Height, MaxEdge, MaxEdge/2)
	}
}

func TestNormalize_LargePNGReencodedAsJPEG(t *testing.T) {
	data := makeTestPNG(t, 1000, 2000)

	out, mediaType, err := Normalize(data, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "image/jpeg" {
		t.Errorf("media type = %q, want image/jpeg after re-encode", mediaType)
	}

	config, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if config.Height != MaxEdge || config.Width != MaxEdge/2 {
		t.Errorf("dimensions = %dx%d, want %dx%d", config.Width, config.Height, MaxEdge/2, MaxEdge)
	}
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	if _, _, err := Normalize([]byte("nope"), "image/jpeg"); err == nil {
		t.Fatal("expected error on non-image data")
	}
}

func TestScaledDims(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{"wide", 2560, 1440, 1280, 720},
		{"tall", 1440, 2560, 720, 1280},
		{"square", 4000, 4000, 1280, 1280},
		{"extreme aspect never collapses to zero", 100000, 10, 1280, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := scaledDims(tt.w, tt.h)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("scaledDims(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
