package domain

import "time"

// Variation links an original asset to a derived asset under a deterministic name.
// The pair (OriginalAssetID, VariationName) is unique.
type Variation struct {
	ID               int64     `json:"id"`
	OriginalAssetID  int64     `json:"original_asset_id"`
	VariationAssetID int64     `json:"variation_asset_id"`
	VariationName    string    `json:"variation_name"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StaleVariation is a cleanup candidate together with the last-used time of
// its derived asset. LastUsedAt is nil when the derived asset was never
// served or no longer exists.
type StaleVariation struct {
	Variation
	AssetLastUsedAt *time.Time
}
