package worker

import (
	"encoding/json"
	"fmt"
)

// DefaultNegativePrompt is applied when the parameter blob does not override
// it.
const DefaultNegativePrompt = "blurry, low quality, distorted, watermark, text"

// Params are the generation parameters parsed out of a run's parameter
// blob. Missing fields take documented defaults.
type Params struct {
	NumImages      int
	NegativePrompt string
	Steps          int
	Guidance       float64
	Width          int
	Height         int
	Seed           *int64
	Saturation     float64
	Contrast       float64
	ModelID        string
}

type rawParams struct {
	NumImages      *int     `json:"num_images"`
	NegativePrompt *string  `json:"negative_prompt"`
	Steps          *int     `json:"steps"`
	Guidance       *float64 `json:"guidance"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	Seed           *int64   `json:"seed"`
	Saturation     *float64 `json:"saturation"`
	Contrast       *float64 `json:"contrast"`
	ModelID        *string  `json:"model_id"`
}

// ParseParams interprets a run's parameter blob. A nil or empty blob yields
// all defaults; a malformed blob or a non-positive image count is an error,
// which fails the run before any engine call.
func ParseParams(blob json.RawMessage, defaultModelID string) (*Params, error) {
	params := &Params{
		NumImages:      1,
		NegativePrompt: DefaultNegativePrompt,
		Steps:          28,
		Guidance:       7.5,
		Width:          1024,
		Height:         1024,
		Saturation:     1.2,
		Contrast:       1.1,
		ModelID:        defaultModelID,
	}

	if len(blob) == 0 {
		return params, nil
	}

	var raw rawParams
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse parameter blob: %w", err)
	}

	if raw.NumImages != nil {
		params.NumImages = *raw.NumImages
	}
	if raw.NegativePrompt != nil {
		params.NegativePrompt = *raw.NegativePrompt
	}
	if raw.Steps != nil {
		params.Steps = *raw.Steps
	}
	if raw.Guidance != nil {
		params.Guidance = *raw.Guidance
	}
	if raw.Width != nil {
		params.Width = *raw.Width
	}
	if raw.Height != nil {
		params.Height = *raw.Height
	}
	params.Seed = raw.Seed
	if raw.Saturation != nil {
		params.Saturation = *raw.Saturation
	}
	if raw.Contrast != nil {
		params.Contrast = *raw.Contrast
	}
	if raw.ModelID != nil {
		params.ModelID = *raw.ModelID
	}

	if params.NumImages < 1 {
		return nil, fmt.Errorf("parse parameter blob: num_images must be positive, got %d", params.NumImages)
	}
	return params, nil
}
