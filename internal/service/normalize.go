package service

import (
	"regexp"
	"strconv"
	"strings"

	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
)

// DefaultImageBaseURL prefixes item icon paths.
const DefaultImageBaseURL = "https://community.cloudflare.steamstatic.com/economy/image/"

var (
	holdMarkers = []string{"tradable after", "cannot be traded until", "trade hold", "trade lock"}
	holdDays    = regexp.MustCompile(`(?i)(\d+)\s*day`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// Normalizer turns raw platform listings into model.Item values.
type Normalizer struct {
	ImageBaseURL string
}

// Normalize converts every raw item of one context. Items from the protected
// context are flagged and never tradable.
func (n Normalizer) Normalize(raw []platform.RawItem, appID, contextID int64, protected bool) []model.Item {
	items := make([]model.Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, n.item(r, appID, contextID, protected))
	}
	return items
}

func (n Normalizer) item(r platform.RawItem, appID, contextID int64, protected bool) model.Item {
	hold, days, description := scanDescriptions(r.Descriptions)

	name := r.MarketHashName
	if name == "" {
		name = r.Name
	}
	if name == "" {
		name = "Unknown Item"
	}
	typ := r.Type
	if typ == "" {
		typ = "Unknown"
	}
	amount := r.Amount
	if amount <= 0 {
		amount = 1
	}

	item := model.Item{
		ID:                r.AssetID,
		ClassID:           r.ClassID,
		InstanceID:        r.InstanceID,
		Amount:            amount,
		Name:              name,
		Type:              typ,
		Rarity:            rarityFromTags(r.Tags),
		Description:       description,
		Tradable:          r.Tradable && !hold && !protected,
		TradeLocked:       r.Tradable && hold,
		NonTradable:       !r.Tradable,
		TradeProtected:    protected,
		Marketable:        r.Marketable,
		TradeHoldDuration: days,
		NameColor:         r.NameColor,
		BackgroundColor:   r.BackgroundColor,
		AppID:             appID,
		ContextID:         contextID,
	}
	if r.IconURL != "" {
		base := n.ImageBaseURL
		if base == "" {
			base = DefaultImageBaseURL
		}
		item.Image = base + r.IconURL
	}
	return item
}

// scanDescriptions detects trade holds and picks the first descriptive line.
func scanDescriptions(descs []platform.Description) (hold bool, days int, description string) {
	for _, d := range descs {
		text := strings.ToLower(d.Value)
		if isHoldLine(text) {
			hold = true
			if m := holdDays.FindStringSubmatch(text); m != nil {
				days, _ = strconv.Atoi(m[1])
			}
			continue
		}
		if description == "" && strings.TrimSpace(d.Value) != "" {
			description = strings.TrimSpace(lineBreak.ReplaceAllString(d.Value, " "))
		}
	}
	return hold, days, description
}

func isHoldLine(text string) bool {
	for _, m := range holdMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// rarityFromTags maps the Rarity tag's internal name onto a tier.
func rarityFromTags(tags []platform.Tag) model.Rarity {
	for _, t := range tags {
		if t.Category != "Rarity" {
			continue
		}
		name := strings.ToLower(t.InternalName)
		switch {
		case strings.Contains(name, "rare"):
			return model.RarityRare
		case strings.Contains(name, "mythical"):
			return model.RarityClassified
		case strings.Contains(name, "legendary"):
			return model.RarityCovert
		case strings.Contains(name, "ancient"):
			return model.RarityLegendary
		}
		return model.RarityCommon
	}
	return model.RarityCommon
}
