package genai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"jewelshot/internal/domain"
)

type file struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

type rawResponse struct {
	Images []file           `json:"images"`
	Image  *file            `json:"image"`
	Video  *file            `json:"video"`
	Output json.RawMessage  `json:"output"`
	Data   *json.RawMessage `json:"data"`
}

// normalize accepts the shapes observed across provider endpoints:
// {"images":[...]}, {"image":{...}}, {"video":{...}}, {"output": url | [url] | [file]}
// and any of those nested under "data".
func normalize(body []byte) ([]Asset, error) {
	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "malformed provider response", Err: err}
	}
	var files []file
	files = append(files, resp.Images...)
	if resp.Image != nil {
		files = append(files, *resp.Image)
	}
	if resp.Video != nil {
		files = append(files, *resp.Video)
	}
	files = append(files, outputFiles(resp.Output)...)
	if len(files) == 0 && resp.Data != nil {
		return normalize(*resp.Data)
	}

	assets := make([]Asset, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		asset, err := toAsset(f)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return nil, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "provider returned no output"}
	}
	return assets, nil
}

func outputFiles(raw json.RawMessage) []file {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return []file{{URL: single}}
	}
	var urls []string
	if json.Unmarshal(raw, &urls) == nil {
		out := make([]file, 0, len(urls))
		for _, u := range urls {
			out = append(out, file{URL: u})
		}
		return out
	}
	var files []file
	if json.Unmarshal(raw, &files) == nil {
		return files
	}
	var one file
	if json.Unmarshal(raw, &one) == nil {
		return []file{one}
	}
	return nil
}

func toAsset(f file) (Asset, error) {
	asset := Asset{URL: f.URL, Width: f.Width, Height: f.Height, ContentType: f.ContentType}
	if !strings.HasPrefix(f.URL, "data:") {
		return asset, nil
	}
	mime, data, err := decodeDataURI(f.URL)
	if err != nil {
		return Asset{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "undecodable inline asset", Err: err}
	}
	asset.URL = ""
	asset.Data = data
	asset.ContentType = firstNonEmpty(f.ContentType, mime)
	if asset.Width == 0 || asset.Height == 0 {
		asset.Width, asset.Height = decodeImageDimensions(data)
	}
	return asset, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("data uri without payload")
	}
	mime := strings.Split(header, ";")[0]
	if !strings.HasSuffix(header, ";base64") {
		return mime, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mime, data, nil
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
