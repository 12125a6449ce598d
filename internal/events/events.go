// Package events carries lifecycle notifications from the orchestrator and
// the inventory cache to any number of subscribers.
package events

import (
	"time"

	"botfleet-api/internal/model"
)

// Type names an event kind on the wire.
type Type string

const (
	StatusChanged         Type = "statusChanged"
	InventoryUpdated      Type = "inventoryUpdated"
	ItemsReceived         Type = "itemsReceived"
	ExchangeOfferReceived Type = "exchangeOfferReceived"
	ChallengeRequired     Type = "challengeRequired"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Account   string    `json:"account"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusData is the payload of StatusChanged.
type StatusData struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// InventoryData is the payload of InventoryUpdated.
type InventoryData struct {
	Items     []model.Item `json:"items"`
	Count     int          `json:"count"`
	FromCache bool         `json:"fromCache"`
}

// ItemsData is the payload of ItemsReceived.
type ItemsData struct {
	Count int `json:"count"`
}

// OfferData is the payload of ExchangeOfferReceived.
type OfferData struct {
	OfferID string `json:"offerId"`
}

// ChallengeData is the payload of ChallengeRequired.
type ChallengeData struct {
	Channel string `json:"channel"`
}

// Status builds a StatusChanged event. err may be nil.
func Status(account, state string, err error) Event {
	data := StatusData{State: state}
	if err != nil {
		data.Error = err.Error()
	}
	return Event{Type: StatusChanged, Account: account, Data: data}
}

// Inventory builds an InventoryUpdated event.
func Inventory(account string, items []model.Item, fromCache bool) Event {
	if items == nil {
		items = []model.Item{}
	}
	return Event{Type: InventoryUpdated, Account: account, Data: InventoryData{Items: items, Count: len(items), FromCache: fromCache}}
}

// NewItems builds an ItemsReceived event.
func NewItems(account string, count int) Event {
	return Event{Type: ItemsReceived, Account: account, Data: ItemsData{Count: count}}
}

// NewOffer builds an ExchangeOfferReceived event.
func NewOffer(account, offerID string) Event {
	return Event{Type: ExchangeOfferReceived, Account: account, Data: OfferData{OfferID: offerID}}
}

// Challenge builds a ChallengeRequired event.
func Challenge(account, channel string) Event {
	return Event{Type: ChallengeRequired, Account: account, Data: ChallengeData{Channel: channel}}
}
