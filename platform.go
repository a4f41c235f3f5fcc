package main

import (
	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"github.com/Philipp15b/go-steam/v3/steamid"
)

// LogOnDetails carries everything the logon handshake needs
type LogOnDetails struct {
	Username      string
	Password      string
	AuthCode      string
	TwoFactorCode string
	LoginKey      string
	SentryHash    []byte
}

// PlatformClient is the contract this core consumes from the Steam network
// layer. One client serves one account; results arrive asynchronously on the
// Events channel and are consumed only by that account's loop.
type PlatformClient interface {
	// Connect starts a connection attempt. Events() reports the outcome.
	Connect() error
	// Disconnect tears the connection down; a DisconnectedEvent follows.
	Disconnect()
	// Connected reports whether the transport is currently up
	Connected() bool
	// LogOn starts the authentication handshake on a connected client
	LogOn(details LogOnDetails)
	// Events is the inbound event channel for this account
	Events() <-chan interface{}
	// SteamID returns the identity assigned by the remote side, 0 before
	// logon
	SteamID() steamid.SteamId

	SendChatMessage(to steamid.SteamId, message string)
	JoinChat(chatRoomID steamid.SteamId)
	SetGamesPlayed(appIDs ...uint32)
	RequestFreeLicense(appIDs []uint32)
	RedeemKey(key string)
	SendMachineAuthResponse(sentryHash []byte)
}

// Events delivered on PlatformClient.Events(). These mirror what the wire
// layer reports, reduced to what the session state machine consumes.

// ConnectedEvent fires when the transport comes up
type ConnectedEvent struct{}

// ConnectFailedEvent fires when a connection attempt fails outright
type ConnectFailedEvent struct {
	Err error
}

// DisconnectedEvent fires when the transport goes down for any reason
type DisconnectedEvent struct{}

// LoggedOnEvent reports the handshake outcome; Result is OK on success and
// a credential or transient code otherwise.
type LoggedOnEvent struct {
	Result       steamlang.EResult
	SteamID      steamid.SteamId
	WebAuthNonce string
}

// LoggedOffEvent fires when the remote side ends an established session
type LoggedOffEvent struct {
	Result steamlang.EResult
}

// LoginKeyEvent delivers a fresh login token to persist for later logons
type LoginKeyEvent struct {
	UniqueID uint32
	LoginKey string
}

// MachineAuthEvent delivers a fresh sentry hash to persist and acknowledge
type MachineAuthEvent struct {
	SentryHash []byte
}

// ChatMessageEvent delivers an incoming friend or chat-room message
type ChatMessageEvent struct {
	SenderID   steamid.SteamId
	ChatRoomID steamid.SteamId
	Message    string
}

// PurchaseResponseEvent reports the outcome of a key redemption
type PurchaseResponseEvent struct {
	Result       steamlang.EResult
	ResultDetail uint32
	Items        []string
}

// FreeLicenseEvent reports the outcome of a free-license grant
type FreeLicenseEvent struct {
	Result          steamlang.EResult
	GrantedAppIDs   []uint32
	GrantedPackages []uint32
}

// ItemNotificationEvent fires when the platform announces new inventory
// items; used to retrigger farming.
type ItemNotificationEvent struct {
	Count uint32
}

// WebSessionEvent delivers material for initializing the web session
type WebSessionEvent struct {
	Nonce string
}
