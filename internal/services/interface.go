package services

import "context"

// GenerateImageRequest describes one image to produce. The worker issues one
// request per requested image.
type GenerateImageRequest struct {
	RunID          string   `json:"run_id"`
	Ordinal        int      `json:"ordinal"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Steps          int      `json:"steps"`
	Guidance       float64  `json:"guidance"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Seed           *int64   `json:"seed,omitempty"`
	Saturation     float64  `json:"saturation"`
	Contrast       float64  `json:"contrast"`
	ModelID        string   `json:"model_id"`
}

// GeneratedImage is the engine's result for one request: object-store URIs
// only, the binary never passes through this service.
type GeneratedImage struct {
	AssetURI string  `json:"asset_uri"`
	ThumbURI *string `json:"thumb_uri,omitempty"`
}

// EngineClient is an interface for invoking the image generation engine.
type EngineClient interface {
	// GenerateImage produces a single image and returns its stored URIs.
	GenerateImage(ctx context.Context, req GenerateImageRequest) (*GeneratedImage, error)
}
