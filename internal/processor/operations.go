// Package processor executes jobs: it maps each operation kind to a provider
// call, runs it with a pooled credential and resolves the job's credit
// reservation once the outcome is known.
package processor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"jewelshot/internal/domain"
	"jewelshot/internal/imagegen"
)

// Request is the payload accepted by every operation. Each kind reads the
// fields it needs and validates them in Build.
type Request struct {
	ImageURL    string  `json:"image_url"`
	MaskURL     string  `json:"mask_url,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
	// camera-control
	Rotate   float64 `json:"rotate,omitempty"`
	Vertical float64 `json:"vertical,omitempty"`
	Zoom     float64 `json:"zoom,omitempty"`
	// video, turntable
	Duration int `json:"duration,omitempty"`

	Brief imagegen.Brief `json:"brief"`
}

// DecodeRequest parses a job payload.
func DecodeRequest(raw json.RawMessage) (Request, error) {
	var req Request
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: payload: %v", domain.ErrInvalidRequest, err)
	}
	return req, nil
}

// Call is a fully-formed provider invocation.
type Call struct {
	Endpoint string
	Params   map[string]any
}

const (
	endpointEdit       = "fal-ai/nano-banana/edit"
	endpointGenerate   = "fal-ai/flux/dev"
	endpointUpscale    = "fal-ai/clarity-upscaler"
	endpointBackground = "fal-ai/birefnet/v2"
	endpointInpaint    = "fal-ai/flux-pro/v1/fill"
	endpointCamera     = "fal-ai/qwen-image-edit-plus-lora-gallery/multiple-angles"
	endpointVideo      = "fal-ai/kling-video/v2.1/standard/image-to-video"
)

// Build resolves kind to its provider call. Every operation kind has exactly
// one case; an unknown kind is an invalid request.
func Build(kind domain.OperationKind, req Request) (Call, error) {
	switch kind {
	case domain.OpEdit:
		return buildEdit(req)
	case domain.OpGenerate:
		return buildGenerate(req)
	case domain.OpUpscale:
		return buildUpscale(req)
	case domain.OpRemoveBackground:
		return buildRemoveBackground(req)
	case domain.OpInpaint:
		return buildInpaint(req)
	case domain.OpCameraControl:
		return buildCameraControl(req)
	case domain.OpGemstoneEnhance:
		return buildJewelryEdit(req, imagegen.FocusGemstone)
	case domain.OpMetalRecolor:
		if strings.TrimSpace(req.Brief.Metal) == "" {
			return Call{}, invalid("metal is required")
		}
		return buildJewelryEdit(req, imagegen.FocusMetalColor)
	case domain.OpMetalPolish:
		return buildJewelryEdit(req, imagegen.FocusMetalPolish)
	case domain.OpNaturalLight:
		return buildJewelryEdit(req, imagegen.FocusNaturalLight)
	case domain.OpVideo:
		return buildVideo(req, req.Prompt)
	case domain.OpTurntable:
		return buildVideo(req, "Slow 360 degree turntable rotation of the jewelry piece on a clean studio background, steady camera, consistent lighting.")
	default:
		return Call{}, invalid(fmt.Sprintf("unsupported operation %q", kind))
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, msg)
}

func requireSource(raw string) (string, error) {
	src := strings.TrimSpace(raw)
	if src == "" {
		return "", invalid("image_url is required")
	}
	if strings.HasPrefix(src, "data:") {
		return src, nil
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", invalid("image_url must be an http(s) or data URL")
	}
	return src, nil
}

func buildEdit(req Request) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = imagegen.BuildInstruction(imagegen.FocusGeneral, req.Brief)
	}
	return Call{Endpoint: endpointEdit, Params: map[string]any{
		"prompt":        prompt,
		"image_urls":    []string{src},
		"num_images":    1,
		"output_format": "png",
	}}, nil
}

func buildGenerate(req Request) (Call, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Call{}, invalid("prompt is required")
	}
	params := map[string]any{"prompt": prompt, "num_images": 1}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		params["aspect_ratio"] = aspect
	}
	return Call{Endpoint: endpointGenerate, Params: params}, nil
}

func buildUpscale(req Request) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	scale := req.Scale
	if scale == 0 {
		scale = 2
	}
	if scale < 1 || scale > 4 {
		return Call{}, invalid("scale must be between 1 and 4")
	}
	return Call{Endpoint: endpointUpscale, Params: map[string]any{
		"image_url":      src,
		"upscale_factor": scale,
	}}, nil
}

func buildRemoveBackground(req Request) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	return Call{Endpoint: endpointBackground, Params: map[string]any{
		"image_url":     src,
		"output_format": "png",
	}}, nil
}

func buildInpaint(req Request) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	mask, err := requireSource(req.MaskURL)
	if err != nil {
		return Call{}, invalid("mask_url is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Call{}, invalid("prompt is required")
	}
	return Call{Endpoint: endpointInpaint, Params: map[string]any{
		"image_url": src,
		"mask_url":  mask,
		"prompt":    prompt,
	}}, nil
}

func buildCameraControl(req Request) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	if req.Rotate < -90 || req.Rotate > 90 {
		return Call{}, invalid("rotate must be between -90 and 90")
	}
	if req.Vertical < -1 || req.Vertical > 1 {
		return Call{}, invalid("vertical must be between -1 and 1")
	}
	if req.Zoom < 0 || req.Zoom > 10 {
		return Call{}, invalid("zoom must be between 0 and 10")
	}
	return Call{Endpoint: endpointCamera, Params: map[string]any{
		"image_urls":        []string{src},
		"rotate_right_left": req.Rotate,
		"vertical_angle":    req.Vertical,
		"move_forward":      req.Zoom,
	}}, nil
}

func buildJewelryEdit(req Request, focus imagegen.Focus) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	brief := req.Brief
	if brief.AspectRatio == "" {
		brief.AspectRatio = req.AspectRatio
	}
	return Call{Endpoint: endpointEdit, Params: map[string]any{
		"prompt":        imagegen.BuildInstruction(focus, brief),
		"image_urls":    []string{src},
		"num_images":    1,
		"output_format": "png",
	}}, nil
}

func buildVideo(req Request, prompt string) (Call, error) {
	src, err := requireSource(req.ImageURL)
	if err != nil {
		return Call{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Call{}, invalid("prompt is required")
	}
	duration := req.Duration
	if duration == 0 {
		duration = 5
	}
	if duration != 5 && duration != 10 {
		return Call{}, invalid("duration must be 5 or 10 seconds")
	}
	return Call{Endpoint: endpointVideo, Params: map[string]any{
		"image_url": src,
		"prompt":    prompt,
		"duration":  fmt.Sprint(duration),
	}}, nil
}
