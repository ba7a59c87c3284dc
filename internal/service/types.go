package service

import "time"

// Asset is a cmn.bin file found below the game directory.
type Asset struct {
	Path         string
	RelativePath string
}

// AssetStatus summarizes the translation state of one asset.
type AssetStatus struct {
	Asset
	Total       int
	Translated  int
	HasOverlay  bool
	OverlayTime time.Time // zero without overlay
	LastRebuild time.Time // zero when never rebuilt successfully
	Error       string
}

// Stale reports whether the overlay was saved after the last successful
// rebuild.
func (s AssetStatus) Stale() bool {
	if !s.HasOverlay {
		return false
	}
	return s.LastRebuild.IsZero() || s.OverlayTime.After(s.LastRebuild)
}
