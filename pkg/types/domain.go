package types

import "time"

// Firmware describes one flashable image published in a release.
type Firmware struct {
	// Display name, the asset file name without extension.
	// example: GP2040-CE_0.7.2_Stress
	Name string `json:"name" example:"GP2040-CE_0.7.2_Stress"`
	// Firmware version parsed from the asset name (falls back to the release tag).
	// example: 0.7.2
	Version string `json:"version" example:"0.7.2"`
	// Board variant parsed from the asset name.
	// example: Stress
	Board string `json:"board,omitempty" example:"Stress"`
	// Source identifier: the download URL, or a bare file name for cached images.
	// example: https://github.com/OpenStickCommunity/GP2040-CE/releases/download/v0.7.2/GP2040-CE_0.7.2_Stress.uf2
	Source string `json:"source"`
	// Local path once the image has been downloaded.
	LocalPath string `json:"local_path,omitempty"`
	// Release tag the asset belongs to.
	// example: v0.7.2
	Release string `json:"release,omitempty" example:"v0.7.2"`
	// Release publication time.
	PublishedAt time.Time `json:"published_at,omitempty"`
	// Asset size in bytes, when known.
	Size int64 `json:"size,omitempty"`
}

// FileName returns the cache file name for the firmware source.
func (f Firmware) FileName() string {
	s := f.Source
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			return s[i+1:]
		}
	}
	return s
}

// Device identifies the board that produced a presence edge, when the
// platform reports it.
type Device struct {
	Vendor   string `json:"vendor,omitempty" example:"RPI"`
	Model    string `json:"model,omitempty" example:"RP2"`
	VendorID string `json:"vendor_id,omitempty" example:"2e8a"`
	ModelID  string `json:"model_id,omitempty" example:"0003"`
	Node     string `json:"node,omitempty" example:"/dev/sda"`
	Source   string `json:"source,omitempty" example:"udev"`
}
