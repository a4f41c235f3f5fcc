package main

import (
	"strings"
	"testing"

	"github.com/Philipp15b/go-steam/v3/steamid"
)

func TestPartitionTradeItems(t *testing.T) {
	makeItems := func(n int) []TradeItem {
		items := make([]TradeItem, n)
		for i := range items {
			items[i] = TradeItem{AppID: 730, ContextID: 2, AssetID: uint64(i + 1), Amount: 1}
		}
		return items
	}

	if batches := partitionTradeItems(nil, 150, 5); len(batches) != 0 {
		t.Fatalf("empty input produced %d batches", len(batches))
	}

	// 10 items at 3 per trade is a ceiling split: 3+3+3+1
	batches := partitionTradeItems(makeItems(10), 3, 5)
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}
	sizes := []int{3, 3, 3, 1}
	for i, batch := range batches {
		if len(batch) != sizes[i] {
			t.Fatalf("batch %d has %d items, want %d", i, len(batch), sizes[i])
		}
	}

	// Items beyond the trade cap are dropped
	batches = partitionTradeItems(makeItems(100), 10, 3)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3 (cap)", len(batches))
	}
	for i, batch := range batches {
		if len(batch) != 10 {
			t.Fatalf("batch %d has %d items, want 10", i, len(batch))
		}
	}
}

func TestLootToMasterWithoutMaster(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw",
	}, nil)

	reply := bot.LootToMaster()
	if reply != "Trade couldn't be sent because master SteamID is not defined!" {
		t.Fatalf("loot without master = %q", reply)
	}
}

func TestLootToMasterSendsTradeBatches(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.inventories[invKey(730, 2)] = []InventoryItem{
		{AppID: 730, ContextID: 2, AssetID: 1, Amount: 1},
		{AppID: 730, ContextID: 2, AssetID: 2, Amount: 1},
		{AppID: 730, ContextID: 2, AssetID: 3, Amount: 1},
	}
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		LootableSets: []LootableSet{{AppID: 730, ContextID: 2}},
	}, web)

	reply := bot.LootToMaster()
	if reply != "3 items out of 3 were sent!" {
		t.Fatalf("loot reply = %q", reply)
	}
	if web.offerCount() != 1 {
		t.Fatalf("%d trade offers sent, want 1", web.offerCount())
	}
}

func TestLootToMasterForwardsGiftsIndividually(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.inventories[invKey(GiftAppID, GiftContextID)] = []InventoryItem{
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 11, Amount: 1},
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 12, Amount: 1},
	}
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		LootableSets: []LootableSet{{AppID: GiftAppID, ContextID: GiftContextID}},
	}, web)

	reply := bot.LootToMaster()
	if reply != "2 items out of 2 were sent!" {
		t.Fatalf("loot reply = %q", reply)
	}
	web.mu.Lock()
	gifts := len(web.gifts)
	offers := len(web.offers)
	web.mu.Unlock()
	if gifts != 2 {
		t.Fatalf("%d gifts forwarded, want 2", gifts)
	}
	if offers != 0 {
		t.Fatalf("gift bucket produced %d trade offers, want 0", offers)
	}
}

func TestLootToMasterSkipsUnavailableInventory(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.invErr = ErrRequestFailed
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		LootableSets: []LootableSet{{AppID: 730, ContextID: 2}},
	}, web)

	reply := bot.LootToMaster()
	if reply != "0 items out of 0 were sent!" {
		t.Fatalf("loot with unavailable inventory = %q", reply)
	}
}

func TestAcceptConfirmationsFiltersByType(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.confs = []Confirmation{
		{ID: 1, Key: 100, Type: ConfirmationTypeTrade},
		{ID: 2, Key: 200, Type: ConfirmationTypeMarket},
		{ID: 3, Key: 300, Type: ConfirmationTypeTrade},
	}
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
	}, web)
	bot.session.SetSecrets("c2hhcmVk", "aWRlbnRpdHk=")
	bot.session.SetDeviceID("android:test-device")

	accepted, err := bot.AcceptConfirmations(ConfirmationTypeTrade)
	if err != nil {
		t.Fatalf("AcceptConfirmations failed: %v", err)
	}
	if accepted != 2 {
		t.Fatalf("accepted %d confirmations, want 2", accepted)
	}
	web.mu.Lock()
	ids := append([]uint64(nil), web.accepted...)
	web.mu.Unlock()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("accepted ids = %v, want [1 3]", ids)
	}

	// No filter accepts everything
	accepted, err = bot.AcceptConfirmations(ConfirmationTypeUnknown)
	if err != nil {
		t.Fatalf("AcceptConfirmations failed: %v", err)
	}
	if accepted != 3 {
		t.Fatalf("accepted %d confirmations without filter, want 3", accepted)
	}
}

func TestAcceptConfirmationsSkipsCycleOnInvalidToken(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.confErr = ErrInvalidSessionToken
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
	}, web)
	bot.session.SetSecrets("c2hhcmVk", "aWRlbnRpdHk=")
	bot.session.SetDeviceID("android:test-device")

	accepted, err := bot.AcceptConfirmations(ConfirmationTypeUnknown)
	if err != nil {
		t.Fatalf("invalid session token must not be fatal, got %v", err)
	}
	if accepted != 0 {
		t.Fatalf("accepted %d confirmations on invalid token, want 0", accepted)
	}
}

func TestAcceptConfirmationsRequiresSecondFactorMaterial(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
	}, nil)

	if _, err := bot.AcceptConfirmations(ConfirmationTypeUnknown); err == nil {
		t.Fatalf("AcceptConfirmations without identity secret succeeded")
	}
}

func TestDistributeGifts(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.inventories[invKey(GiftAppID, GiftContextID)] = []InventoryItem{
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 21, Amount: 1},
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 22, Amount: 1},
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 23, Amount: 1},
	}

	main, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		DistributeGifts: true,
	}, web)
	main.session.SetIDs(76561198000000001, steamid.SteamId(76561198000000001).GetAccountId())

	bob, _ := fleet.addBot(t, BotConfig{
		Name: "bob", Username: "bob", Password: "pw", MasterID: 76561198000000001,
	}, nil)
	bob.session.SetIDs(76561198000000002, steamid.SteamId(76561198000000002).GetAccountId())

	carol, _ := fleet.addBot(t, BotConfig{
		Name: "carol", Username: "carol", Password: "pw", MasterID: 76561198000000001,
	}, nil)
	carol.session.SetIDs(76561198000000003, steamid.SteamId(76561198000000003).GetAccountId())

	reply := main.DistributeGifts()
	if reply != "2 gift(s) were distributed among 2 slave bot(s)!" {
		t.Fatalf("distribute reply = %q", reply)
	}
	web.mu.Lock()
	targets := append([]steamid.SteamId(nil), web.giftTargets...)
	web.mu.Unlock()
	if len(targets) != 2 {
		t.Fatalf("%d gifts sent, want 2", len(targets))
	}
}

func TestDistributeGiftsWithoutSlaves(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		DistributeGifts: true,
	}, nil)
	bot.session.SetIDs(76561198000000001, steamid.SteamId(76561198000000001).GetAccountId())

	if reply := bot.DistributeGifts(); reply != "No slave bots found!" {
		t.Fatalf("distribute without slaves = %q", reply)
	}
}

func TestDistributeGiftsHonorsPolicyFlag(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.inventories[invKey(GiftAppID, GiftContextID)] = []InventoryItem{
		{AppID: GiftAppID, ContextID: GiftContextID, AssetID: 21, Amount: 1},
	}
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
	}, web)
	bot.session.SetIDs(76561198000000001, steamid.SteamId(76561198000000001).GetAccountId())

	if reply := bot.DistributeGifts(); reply != "Gift distribution is disabled for this bot!" {
		t.Fatalf("distribute with flag unset = %q", reply)
	}
	web.mu.Lock()
	gifts := len(web.gifts)
	web.mu.Unlock()
	if gifts != 0 {
		t.Fatalf("%d gifts sent despite disabled policy", gifts)
	}
}

func TestStartFarmingRequiresLogon(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, fc := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		FarmApps: []uint32{10},
	}, nil)

	bot.StartFarming()
	fc.mu.Lock()
	played := len(fc.played)
	fc.mu.Unlock()
	if played != 0 {
		t.Fatalf("farming announced before logon")
	}
}

func TestStopFarmingClearsPlayedGames(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, fc := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		FarmApps: []uint32{10, 20},
	}, nil)
	markLoggedOn(bot, fc)

	bot.StartFarming()
	if apps := bot.Status().FarmingApps; len(apps) != 2 {
		t.Fatalf("farming apps = %v", apps)
	}

	bot.StopFarming()
	if apps := bot.Status().FarmingApps; len(apps) != 0 {
		t.Fatalf("farming apps after stop = %v", apps)
	}
	if played := fc.lastPlayed(); len(played) != 0 {
		t.Fatalf("stop did not clear the played set: %v", played)
	}
}

func TestLootReplyMentionsPartialDelivery(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	web := newFakeWebClient()
	web.inventories[invKey(730, 2)] = []InventoryItem{
		{AppID: 730, ContextID: 2, AssetID: 1, Amount: 1},
		{AppID: 730, ContextID: 2, AssetID: 2, Amount: 1},
	}
	web.offerErr = ErrRequestFailed
	bot, _ := fleet.addBot(t, BotConfig{
		Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice,
		LootableSets: []LootableSet{{AppID: 730, ContextID: 2}},
	}, web)

	reply := bot.LootToMaster()
	if !strings.HasPrefix(reply, "0 items out of 2") {
		t.Fatalf("failed delivery reply = %q", reply)
	}
}
