package main

import (
	"time"

	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
)

// Constants for bot management
const (
	// Reconnection settings
	ReconnectDelay        = 5 * time.Second
	InvalidPasswordSleep  = 25 * time.Minute
	LoggedElsewhereSleep  = 5 * time.Minute
	DisconnectRetryBudget = 5
	DisconnectRetrySleep  = 2 * time.Second

	// Event loop poll interval
	CallbackPollInterval = 500 * time.Millisecond

	// Trade limits
	MaxItemsPerTrade    = 150
	MaxTradesPerAccount = 5

	// Web request retry budget
	WebRequestRetryLimit = 5

	// Bot states
	BotStateIdle           = "idle"
	BotStateConnecting     = "connecting"
	BotStateAuthenticating = "authenticating"
	BotStateActive         = "active"
	BotStateRetrying       = "retrying"
	BotStateShuttingDown   = "shutting_down"
)

// transientResults are logon results that the reconnect path retries on its
// own; any other unexpected result is fatal for the affected bot only.
var transientResults = map[steamlang.EResult]bool{
	steamlang.EResult_NoConnection:       true,
	steamlang.EResult_ServiceUnavailable: true,
	steamlang.EResult_Timeout:            true,
	steamlang.EResult_TryAnotherCM:       true,
}

// ConfirmationType classifies a pending mobile confirmation
type ConfirmationType int

const (
	ConfirmationTypeUnknown ConfirmationType = 0
	ConfirmationTypeTrade   ConfirmationType = 2
	ConfirmationTypeMarket  ConfirmationType = 3
)

// Confirmation represents one pending confirmation fetched from the
// confirmation service; confirmations are never cached between polls.
type Confirmation struct {
	ID   uint64
	Key  uint64
	Type ConfirmationType
}

// InventoryItem represents one asset in a Steam inventory context
type InventoryItem struct {
	AppID     uint32
	ContextID uint64
	AssetID   uint64
	ClassID   uint64
	Amount    uint32
	Tradable  bool
}

// TradeItem is the subset of an inventory item that goes on the wire in a
// trade offer
type TradeItem struct {
	AppID     uint32 `json:"appid"`
	ContextID uint64 `json:"contextid,string"`
	AssetID   uint64 `json:"assetid,string"`
	Amount    uint32 `json:"amount"`
}

// BotStatus represents the status of a single bot for the health endpoint
// and the status commands
type BotStatus struct {
	Name        string   `json:"name"`
	State       string   `json:"state"`
	Connected   bool     `json:"connected"`
	LoggedOn    bool     `json:"loggedOn"`
	KeepRunning bool     `json:"keepRunning"`
	FarmingApps []uint32 `json:"farmingApps,omitempty"`
}

// HealthResponse is returned by the /health endpoint
type HealthResponse struct {
	Status string      `json:"status"`
	Bots   []BotStatus `json:"bots"`
}

// CommandResponse is returned by the /command endpoint
type CommandResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ActivityResponse is returned by the /activity endpoint
type ActivityResponse struct {
	Success  bool       `json:"success"`
	Activity []Activity `json:"activity,omitempty"`
	Error    string     `json:"error,omitempty"`
}
