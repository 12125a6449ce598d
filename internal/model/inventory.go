package model

import "time"

// Rarity is the normalized rarity tier of an item.
type Rarity string

const (
	RarityCommon     Rarity = "common"
	RarityRare       Rarity = "rare"
	RarityClassified Rarity = "classified"
	RarityCovert     Rarity = "covert"
	RarityLegendary  Rarity = "legendary"
)

// Item is a normalized inventory item. It is derived from a raw platform
// listing and only ever persisted as part of a cached snapshot.
type Item struct {
	ID                string `json:"assetid"`
	ClassID           string `json:"classid"`
	InstanceID        string `json:"instanceid"`
	Amount            int64  `json:"amount"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	Rarity            Rarity `json:"rarity"`
	Description       string `json:"description,omitempty"`
	Tradable          bool   `json:"tradable"`
	TradeLocked       bool   `json:"tradeLocked"`
	NonTradable       bool   `json:"nonTradable"`
	TradeProtected    bool   `json:"tradeProtected"`
	Marketable        bool   `json:"marketable"`
	TradeHoldDuration int    `json:"tradeHoldDuration"`
	Image             string `json:"image"`
	NameColor         string `json:"nameColor,omitempty"`
	BackgroundColor   string `json:"backgroundColor,omitempty"`
	AppID             int64  `json:"appid"`
	ContextID         int64  `json:"contextid"`
}

// InventoryKey identifies one cached snapshot: account, namespace, category.
type InventoryKey struct {
	AccountID int64
	AppID     int64
	ContextID int64
}

// InventoryEntry is a timestamped snapshot of normalized items.
type InventoryEntry struct {
	Key      InventoryKey
	Items    []Item
	CachedAt time.Time
}

// Fresh reports whether the entry is younger than ttl at now.
func (e *InventoryEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.CachedAt) < ttl
}

// OfferResult is the outcome of an exchange proposal.
type OfferResult struct {
	OfferID   string `json:"offerId"`
	Status    string `json:"status"`
	ItemCount int    `json:"itemCount"`
}
