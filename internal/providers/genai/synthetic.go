package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"jewelshot/internal/domain"
)

// Synthetic renders deterministic placeholder images instead of calling the
// provider. Identical endpoint and parameters always produce identical bytes.
type Synthetic struct{}

// NewSynthetic returns the local development provider.
func NewSynthetic() *Synthetic { return &Synthetic{} }

// Invoke mirrors Client.Invoke. The credential is still required so that
// pool behaviour is exercised the same way as in remote mode.
func (s *Synthetic) Invoke(ctx context.Context, endpoint string, params map[string]any, credential domain.Credential) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "synthetic call cancelled", Err: err}
	}
	if strings.TrimSpace(credential.Key) == "" {
		return nil, &domain.ProviderError{Class: domain.ProviderClassAuth, Message: "credential has no key"}
	}
	aspect, _ := params["aspect_ratio"].(string)
	prompt, _ := params["prompt"].(string)
	width, height := normalizeAspect(aspect)
	seed := deterministicSeed(endpoint, prompt, params["image_url"], aspect)

	data := renderSyntheticImage(width, height, seed)
	if data == nil {
		return nil, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "synthetic render failed"}
	}
	return &Output{Assets: []Asset{{
		Width:       width,
		Height:      height,
		ContentType: "image/png",
		Data:        data,
	}}}, nil
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1024, 1280
	case "3:2":
		return 1536, 1024
	case "1:1", "square", "":
		return 1024, 1024
	default:
		a, b, ok := strings.Cut(aspect, ":")
		if ok {
			w, errA := strconv.Atoi(strings.TrimSpace(a))
			h, errB := strconv.Atoi(strings.TrimSpace(b))
			if errA == nil && errB == nil && w > 0 && h > 0 {
				return 1024, int(float64(1024) * float64(h) / float64(w))
			}
		}
		return 1024, 1024
	}
}
