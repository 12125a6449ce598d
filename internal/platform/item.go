package platform

// RawItem is an item as listed by the platform, before normalization.
type RawItem struct {
	AssetID         string        `json:"assetid"`
	ClassID         string        `json:"classid"`
	InstanceID      string        `json:"instanceid"`
	Amount          int64         `json:"amount"`
	Name            string        `json:"name"`
	MarketHashName  string        `json:"market_hash_name"`
	Type            string        `json:"type"`
	Tradable        bool          `json:"tradable"`
	Marketable      bool          `json:"marketable"`
	IconURL         string        `json:"icon_url"`
	NameColor       string        `json:"name_color"`
	BackgroundColor string        `json:"background_color"`
	Descriptions    []Description `json:"descriptions"`
	Tags            []Tag         `json:"tags"`
}

// Description is one free-text line attached to an item.
type Description struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Tag is a classification label attached to an item.
type Tag struct {
	Category     string `json:"category"`
	InternalName string `json:"internal_name"`
	Name         string `json:"localized_tag_name"`
}
