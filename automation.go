package main

import (
	"errors"
	"fmt"

	"github.com/Philipp15b/go-steam/v3/steamid"
)

// FarmingStrategy computes the card-farming candidate set. The strategy
// itself is a collaborator; the bot only decides when to (re)trigger it.
type FarmingStrategy interface {
	CandidateApps(b *Bot) ([]uint32, error)
}

// StaticFarmingStrategy farms the apps listed in the bot configuration
type StaticFarmingStrategy struct{}

// CandidateApps returns the configured farm set
func (StaticFarmingStrategy) CandidateApps(b *Bot) ([]uint32, error) {
	return append([]uint32(nil), b.config.FarmApps...), nil
}

// StartFarming recomputes the candidate set and announces it as played.
// Safe to call repeatedly; overlapping triggers are not errors. While the
// operator holds a manual play override, automatic triggers are ignored.
func (b *Bot) StartFarming() {
	b.mutex.Lock()
	if !b.loggedOn || b.manualPlay {
		b.mutex.Unlock()
		return
	}
	client := b.client
	b.mutex.Unlock()

	apps, err := b.farmer.CandidateApps(b)
	if err != nil {
		LogBotWarning(b.Name, "Farming strategy failed: %v", err)
		return
	}

	b.mutex.Lock()
	b.farming = len(apps) > 0
	b.farmingApps = apps
	b.mutex.Unlock()

	if client != nil {
		client.SetGamesPlayed(apps...)
	}
	if len(apps) > 0 {
		LogBotInfo(b.Name, "Farming %d app(s)", len(apps))
	}
}

// StopFarming clears the farming state; called on disconnect and before a
// forced recompute
func (b *Bot) StopFarming() {
	b.mutex.Lock()
	wasFarming := b.farming
	b.farming = false
	b.farmingApps = nil
	client := b.client
	connected := client != nil && client.Connected()
	b.mutex.Unlock()

	if wasFarming && connected {
		client.SetGamesPlayed()
	}
}

// AcceptConfirmations fetches the pending confirmations and accepts every
// one matching the filter (ConfirmationTypeUnknown accepts all). Requires
// stored second-factor material. An invalid session token skips the cycle;
// it is not fatal and not retried within the cycle.
func (b *Bot) AcceptConfirmations(filter ConfirmationType) (int, error) {
	state := b.session.State()
	if state.IdentitySecret == "" {
		return 0, fmt.Errorf("no identity secret configured")
	}
	deviceID := state.DeviceID
	if deviceID == "" {
		return 0, fmt.Errorf("no device id resolved yet")
	}

	confs, err := b.web.FetchConfirmations(state.IdentitySecret, deviceID)
	if err != nil {
		if errors.Is(err, ErrInvalidSessionToken) {
			LogBotWarning(b.Name, "Confirmation session token invalid, skipping cycle")
			return 0, nil
		}
		return 0, err
	}

	accepted := 0
	for _, conf := range confs {
		if filter != ConfirmationTypeUnknown && conf.Type != filter {
			continue
		}
		if err := b.web.AcceptConfirmation(state.IdentitySecret, deviceID, conf); err != nil {
			LogBotWarning(b.Name, "Failed to accept confirmation %d: %v", conf.ID, err)
			continue
		}
		accepted++
	}
	if accepted > 0 {
		LogBotInfo(b.Name, "Accepted %d confirmation(s)", accepted)
	}
	return accepted, nil
}

// partitionTradeItems splits a flat item list into batches of at most
// maxPerTrade items, keeping at most maxTrades batches. Items beyond the
// trade cap are dropped.
func partitionTradeItems(items []TradeItem, maxPerTrade, maxTrades int) [][]TradeItem {
	var batches [][]TradeItem
	for len(items) > 0 && len(batches) < maxTrades {
		n := maxPerTrade
		if n > len(items) {
			n = len(items)
		}
		batches = append(batches, items[:n])
		items = items[n:]
	}
	return batches
}

// LootToMaster collects every configured lootable bucket and settles it to
// the master account: gifts are forwarded one by one, everything else goes
// out in bounded trade batches. Returns the human-readable result.
func (b *Bot) LootToMaster() string {
	if b.config.MasterID == 0 {
		return "Trade couldn't be sent because master SteamID is not defined!"
	}

	selfID := steamid.SteamId(b.SteamID64())
	masterID := steamid.SteamId(b.config.MasterID)

	var tradeItems []TradeItem
	var giftIDs []uint64
	total := 0

	for _, set := range b.config.LootableSets {
		items, err := b.web.GetInventory(selfID, set.AppID, set.ContextID, true)
		if err != nil {
			if errors.Is(err, ErrRequestFailed) {
				LogBotWarning(b.Name, "Inventory %d/%d unavailable after retries", set.AppID, set.ContextID)
				continue
			}
			LogBotWarning(b.Name, "Failed to list inventory %d/%d: %v", set.AppID, set.ContextID, err)
			continue
		}
		for _, item := range items {
			total++
			if set.AppID == GiftAppID && set.ContextID == GiftContextID {
				giftIDs = append(giftIDs, item.AssetID)
				continue
			}
			tradeItems = append(tradeItems, TradeItem{
				AppID:     item.AppID,
				ContextID: item.ContextID,
				AssetID:   item.AssetID,
				Amount:    item.Amount,
			})
		}
	}

	sent := 0

	// Unwrapped gifts can't ride a trade offer; forward them individually
	for _, giftID := range giftIDs {
		if err := b.web.SendGift(giftID, masterID); err != nil {
			LogBotWarning(b.Name, "Failed to send gift %d: %v", giftID, err)
			continue
		}
		sent++
	}

	anyTradeSent := false
	for _, batch := range partitionTradeItems(tradeItems, MaxItemsPerTrade, MaxTradesPerAccount) {
		if err := b.web.SendTradeOffer(masterID, b.config.TradeToken, batch); err != nil {
			LogBotWarning(b.Name, "Failed to send trade offer: %v", err)
			continue
		}
		sent += len(batch)
		anyTradeSent = true
		metricTradesSent.Inc()
		activityLog(b.Name, activityTrade, fmt.Sprintf("sent %d item(s) to %d", len(batch), b.config.MasterID))
	}

	if anyTradeSent {
		// Outbound offers need a trade confirmation to actually move
		go func() {
			if _, err := b.AcceptConfirmations(ConfirmationTypeTrade); err != nil {
				LogBotDebugConfirmations(b.Name, err)
			}
		}()
	}

	return fmt.Sprintf("%d items out of %d were sent!", sent, total)
}

// Slaves returns every bot in the fleet that designates this bot as its
// master
func (b *Bot) Slaves() []*Bot {
	selfID := b.SteamID64()
	if selfID == 0 {
		return nil
	}
	var slaves []*Bot
	for _, other := range b.registry.All() {
		if other.Name == b.Name {
			continue
		}
		if other.config.MasterID == selfID {
			slaves = append(slaves, other)
		}
	}
	return slaves
}

// DistributeGifts drains this bot's gift inventory, one gift per slave bot.
// Slaves without a resolved platform identity are skipped. Requires the
// distributeGifts policy flag.
func (b *Bot) DistributeGifts() string {
	if !b.config.DistributeGifts {
		return "Gift distribution is disabled for this bot!"
	}

	selfID := b.SteamID64()
	if selfID == 0 {
		return "Bot identity is not resolved yet!"
	}

	slaves := b.Slaves()
	if len(slaves) == 0 {
		return "No slave bots found!"
	}

	gifts, err := b.web.GetInventory(steamid.SteamId(selfID), GiftAppID, GiftContextID, false)
	if err != nil {
		if errors.Is(err, ErrRequestFailed) {
			return "Gift inventory is unavailable right now!"
		}
		return fmt.Sprintf("Failed to list gift inventory: %v", err)
	}
	if len(gifts) == 0 {
		return "No gifts to distribute!"
	}

	sent := 0
	next := 0
	for _, slave := range slaves {
		if next >= len(gifts) {
			break
		}
		recipient := slave.SteamID64()
		if recipient == 0 {
			LogBotWarning(b.Name, "Skipping %s: identity not resolved", slave.Name)
			continue
		}
		gift := gifts[next]
		next++
		if err := b.web.SendGift(gift.AssetID, steamid.SteamId(recipient)); err != nil {
			LogBotWarning(b.Name, "Failed to send gift %d to %s: %v", gift.AssetID, slave.Name, err)
			continue
		}
		activityLog(b.Name, activityGift, fmt.Sprintf("gift %d to %s", gift.AssetID, slave.Name))
		sent++
	}
	return fmt.Sprintf("%d gift(s) were distributed among %d slave bot(s)!", sent, len(slaves))
}
