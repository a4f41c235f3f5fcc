package main

import (
	"sync"

	goSteam "github.com/Philipp15b/go-steam/v3"
	"github.com/Philipp15b/go-steam/v3/protocol"
	"github.com/Philipp15b/go-steam/v3/protocol/protobuf"
	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"github.com/Philipp15b/go-steam/v3/steamid"
	"google.golang.org/protobuf/proto"
)

// SteamClient adapts go-steam to the PlatformClient contract. It translates
// the library's event stream into core events and handles the client
// messages the library has no high-level API for (key redemption, free
// licenses, item announcements).
type SteamClient struct {
	client *goSteam.Client
	out    chan interface{}

	mutex      sync.Mutex
	sawConnect bool
}

// NewSteamClient builds a client for one account. The client survives
// reconnects; one instance serves the account for the bot's whole lifetime.
func NewSteamClient() *SteamClient {
	c := &SteamClient{
		client: goSteam.NewClient(),
		out:    make(chan interface{}, 64),
	}
	c.client.RegisterPacketHandler(c)
	go c.pump()
	return c
}

// Connect starts a connection attempt; the outcome arrives on Events()
func (c *SteamClient) Connect() error {
	c.mutex.Lock()
	c.sawConnect = false
	c.mutex.Unlock()
	go c.client.Connect()
	return nil
}

// Disconnect tears the connection down
func (c *SteamClient) Disconnect() {
	c.client.Disconnect()
}

// Connected reports transport state
func (c *SteamClient) Connected() bool {
	return c.client.Connected()
}

// LogOn issues the authenticate request
func (c *SteamClient) LogOn(details LogOnDetails) {
	c.client.Auth.LogOn(&goSteam.LogOnDetails{
		Username:               details.Username,
		Password:               details.Password,
		AuthCode:               details.AuthCode,
		TwoFactorCode:          details.TwoFactorCode,
		LoginKey:               details.LoginKey,
		SentryFileHash:         goSteam.SentryHash(details.SentryHash),
		ShouldRememberPassword: true,
	})
}

// Events is the translated inbound event channel
func (c *SteamClient) Events() <-chan interface{} {
	return c.out
}

// SteamID returns the identity assigned by the remote side
func (c *SteamClient) SteamID() steamid.SteamId {
	return c.client.SteamId()
}

// SendChatMessage sends a friend or chat-room message
func (c *SteamClient) SendChatMessage(to steamid.SteamId, message string) {
	c.client.Social.SendMessage(to, steamlang.EChatEntryType_ChatMsg, message)
}

// JoinChat enters a chat room (clan ids are accepted)
func (c *SteamClient) JoinChat(chatRoomID steamid.SteamId) {
	c.client.Social.JoinChat(chatRoomID)
}

// SetGamesPlayed announces the played app set
func (c *SteamClient) SetGamesPlayed(appIDs ...uint32) {
	ids := make([]uint64, len(appIDs))
	for i, appID := range appIDs {
		ids[i] = uint64(appID)
	}
	c.client.GC.SetGamesPlayed(ids...)
}

// RequestFreeLicense asks for free licenses; the outcome arrives as a
// FreeLicenseEvent
func (c *SteamClient) RequestFreeLicense(appIDs []uint32) {
	c.client.Write(protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientRequestFreeLicense,
		&protobuf.CMsgClientRequestFreeLicense{
			Appids: appIDs,
		}))
}

// RedeemKey registers a product key; the outcome arrives as a
// PurchaseResponseEvent
func (c *SteamClient) RedeemKey(key string) {
	c.client.Write(protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientRegisterKey,
		&protobuf.CMsgClientRegisterKey{
			Key: proto.String(key),
		}))
}

// SendMachineAuthResponse acknowledges fresh sentry material
func (c *SteamClient) SendMachineAuthResponse(sentryHash []byte) {
	c.client.Write(protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientUpdateMachineAuthResponse,
		&protobuf.CMsgClientUpdateMachineAuthResponse{
			ShaFile: sentryHash,
		}))
}

// HandlePacket handles the client messages go-steam leaves to its consumers
func (c *SteamClient) HandlePacket(packet *protocol.Packet) {
	switch packet.EMsg {
	case steamlang.EMsg_ClientPurchaseResponse:
		body := new(protobuf.CMsgClientPurchaseResponse)
		packet.ReadProtoMsg(body)
		c.emit(PurchaseResponseEvent{
			Result:       steamlang.EResult(body.GetEresult()),
			ResultDetail: uint32(body.GetPurchaseResultDetails()),
		})

	case steamlang.EMsg_ClientRequestFreeLicenseResponse:
		body := new(protobuf.CMsgClientRequestFreeLicenseResponse)
		packet.ReadProtoMsg(body)
		c.emit(FreeLicenseEvent{
			Result:          steamlang.EResult(body.GetEresult()),
			GrantedAppIDs:   body.GetGrantedAppids(),
			GrantedPackages: body.GetGrantedPackageids(),
		})

	case steamlang.EMsg_ClientItemAnnouncements:
		body := new(protobuf.CMsgClientItemAnnouncements)
		packet.ReadProtoMsg(body)
		c.emit(ItemNotificationEvent{
			Count: body.GetCountNewItems(),
		})
	}
}

// pump translates the library event stream into core events
func (c *SteamClient) pump() {
	for event := range c.client.Events() {
		switch e := event.(type) {
		case *goSteam.ConnectedEvent:
			c.mutex.Lock()
			c.sawConnect = true
			c.mutex.Unlock()
			c.emit(ConnectedEvent{})

		case *goSteam.DisconnectedEvent:
			c.emit(DisconnectedEvent{})

		case *goSteam.LoggedOnEvent:
			c.emit(LoggedOnEvent{
				Result:       e.Result,
				SteamID:      e.ClientSteamId,
				WebAuthNonce: e.WebApiUserNonce,
			})

		case *goSteam.LogOnFailedEvent:
			c.emit(LoggedOnEvent{
				Result: e.Result,
			})

		case *goSteam.LoggedOffEvent:
			c.emit(LoggedOffEvent{
				Result: e.Result,
			})

		case *goSteam.LoginKeyEvent:
			c.emit(LoginKeyEvent{
				UniqueID: e.UniqueId,
				LoginKey: e.LoginKey,
			})

		case *goSteam.MachineAuthUpdateEvent:
			c.emit(MachineAuthEvent{
				SentryHash: e.Hash,
			})

		case *goSteam.ChatMsgEvent:
			if e.EntryType != steamlang.EChatEntryType_ChatMsg {
				continue
			}
			c.emit(ChatMessageEvent{
				SenderID:   e.ChatterId,
				ChatRoomID: e.ChatRoomId,
				Message:    e.Message,
			})

		case goSteam.FatalErrorEvent:
			c.mutex.Lock()
			connected := c.sawConnect
			c.mutex.Unlock()
			if !connected {
				c.emit(ConnectFailedEvent{Err: e})
			}
			// When the error killed an established connection, the
			// DisconnectedEvent that follows drives recovery.
		}
	}
	close(c.out)
}

// emit forwards one event without ever blocking the pump
func (c *SteamClient) emit(event interface{}) {
	select {
	case c.out <- event:
	default:
		LogDebug("Dropping platform event %T: consumer is behind", event)
	}
}
