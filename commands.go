package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"github.com/Philipp15b/go-steam/v3/steamid"
)

// Timeout for request/response command pairs (redeem, addlicense)
const commandResponseTimeout = 10 * time.Second

// HandleMessage parses and executes one textual command on behalf of
// requesterID. Returns the reply, or "" for unauthorized or empty input.
// Unauthenticated senders get no reply at all; recognized fleet identities
// lacking the needed tier get an explicit refusal.
func (b *Bot) HandleMessage(requesterID uint64, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if !b.IsMaster(requesterID) && !b.IsOwner(requesterID) {
		if b.isRecognized(requesterID) {
			return "You are not authorized to use this command!"
		}
		return ""
	}

	// One command at a time per bot; other bots keep handling theirs
	b.cmdMutex.Lock()
	defer b.cmdMutex.Unlock()
	metricCommands.Inc()

	prefix := b.global.CommandPrefix
	if !strings.HasPrefix(text, prefix) {
		// Bare text is a card-key redemption batch, one key per line
		return b.redeemKeys(splitKeys(text), b.config.ValidateKeys)
	}

	parts := strings.SplitN(strings.TrimPrefix(text, prefix), " ", 2)
	command := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch command {
	case "status":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.statusReply()

	case "statusall":
		if !b.IsOwner(requesterID) {
			return "You are not authorized to use this command!"
		}
		return b.statusAllReply()

	case "start":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.Start()

	case "stop":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.Stop()

	case "restart":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.Restart()

	case "farm":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		target.StopFarming()
		target.StartFarming()
		return "Done!"

	case "loot":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.LootToMaster()

	case "distribute":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.DistributeGifts()

	case "redeem":
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.redeemKeys(splitKeys(rest), target.config.ValidateKeys)

	case "redeem^":
		// Best-effort variant: no key-shape validation
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.redeemKeys(splitKeys(rest), false)

	case "addlicense":
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.addLicenses(rest)

	case "owns":
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.ownsReply(rest)

	case "play":
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.playReply(rest)

	case "2fa":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		return target.twoFactorReply()

	case "2faok":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		accepted, err := target.AcceptConfirmations(ConfirmationTypeUnknown)
		if err != nil {
			return fmt.Sprintf("Confirmation check failed: %v", err)
		}
		return fmt.Sprintf("Accepted %d confirmation(s)!", accepted)

	case "2faoff":
		target, _, reply := b.resolveTarget(requesterID, arg, false)
		if reply != "" {
			return reply
		}
		target.session.SetSecrets("", "")
		return "Two-factor material removed!"

	case "rank":
		target, rest, reply := b.resolveTarget(requesterID, arg, true)
		if reply != "" {
			return reply
		}
		return target.rankReply(rest)

	case "rejoinchat":
		if !b.IsOwner(requesterID) {
			return "You are not authorized to use this command!"
		}
		for _, bot := range b.registry.All() {
			bot.rejoinChat()
		}
		return "Done!"

	case "exit":
		if !b.IsOwner(requesterID) {
			return "You are not authorized to use this command!"
		}
		requestProcessSignal("exit")
		return "Done!"

	case "reboot":
		if !b.IsOwner(requesterID) {
			return "You are not authorized to use this command!"
		}
		requestProcessSignal("restart")
		return "Done!"

	default:
		return "Unrecognized command: " + text
	}
}

// isRecognized reports whether id belongs to the fleet's trust universe: a
// bot identity, some bot's master, or the owner.
func (b *Bot) isRecognized(id uint64) bool {
	if id == 0 {
		return false
	}
	if id == b.global.OwnerID {
		return true
	}
	if b.registry.FindBySteamID(id) != nil {
		return true
	}
	for _, bot := range b.registry.All() {
		if bot.config.MasterID == id {
			return true
		}
	}
	return false
}

// resolveTarget applies the explicit target-account-name convention: when
// the first argument names a registered bot, the command runs against that
// bot with the remaining argument. For payload-bearing commands (keys,
// appids, queries) an unmatched first token is payload for the current bot;
// for selector-only commands it yields the literal miss reply.
func (b *Bot) resolveTarget(requesterID uint64, arg string, payload bool) (*Bot, string, string) {
	if arg == "" {
		return b, "", ""
	}

	first := arg
	rest := ""
	if idx := strings.IndexByte(arg, ' '); idx >= 0 {
		first = arg[:idx]
		rest = strings.TrimSpace(arg[idx+1:])
	}

	if target := b.registry.Get(first); target != nil {
		if !target.IsMaster(requesterID) && !target.IsOwner(requesterID) {
			return nil, "", "You are not authorized to use this command!"
		}
		return target, rest, ""
	}

	if payload {
		return b, arg, ""
	}
	return nil, "", fmt.Sprintf("Couldn't find any bot named %s!", first)
}

// splitKeys breaks a redemption batch into individual keys, one per line
// (whitespace also separates).
func splitKeys(text string) []string {
	return strings.Fields(text)
}

// validKeyShape checks the minimal key format: at least two separator dashes
func validKeyShape(key string) bool {
	return strings.Count(key, "-") >= 2
}

// redeemKeys batch-redeems keys, accumulating one status line per key.
// An unrecoverable redemption error stops the batch early but keeps the
// lines produced so far.
func (b *Bot) redeemKeys(keys []string, validate bool) string {
	if len(keys) == 0 {
		return "No keys given!"
	}

	b.mutex.Lock()
	client := b.client
	loggedOn := b.loggedOn
	b.mutex.Unlock()
	if client == nil || !loggedOn {
		return "This bot instance is not connected!"
	}

	var lines []string
	for _, key := range keys {
		if validate && !validKeyShape(key) {
			continue
		}

		// Drop any stale response before issuing a new request
		select {
		case <-b.purchaseResult:
		default:
		}

		client.RedeemKey(key)
		select {
		case result := <-b.purchaseResult:
			if result.Result == steamlang.EResult_OK {
				line := key + ": OK"
				if len(result.Items) > 0 {
					line += " (" + strings.Join(result.Items, ", ") + ")"
				}
				lines = append(lines, line)
				metricKeysRedeemed.Inc()
				activityLog(b.Name, activityRedeem, key)
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %v", key, result.Result))
			if result.Result == steamlang.EResult_RateLimitExceeded {
				// No point burning the rest of the batch
				lines = append(lines, "Rate limit exceeded, stopping batch early!")
				return strings.Join(lines, "\n")
			}
		case <-time.After(commandResponseTimeout):
			lines = append(lines, fmt.Sprintf("%s: request timed out", key))
		}
	}

	if len(lines) == 0 {
		return "No valid keys given!"
	}
	return strings.Join(lines, "\n")
}

// addLicenses grants free licenses for a comma-separated appid list
func (b *Bot) addLicenses(arg string) string {
	if arg == "" {
		return "No appIDs given!"
	}

	b.mutex.Lock()
	client := b.client
	loggedOn := b.loggedOn
	b.mutex.Unlock()
	if client == nil || !loggedOn {
		return "This bot instance is not connected!"
	}

	var lines []string
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		appID, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: not a valid appID", field))
			continue
		}

		select {
		case <-b.licenseResult:
		default:
		}

		client.RequestFreeLicense([]uint32{uint32(appID)})
		select {
		case result := <-b.licenseResult:
			if result.Result == steamlang.EResult_OK {
				lines = append(lines, fmt.Sprintf("%d: OK", appID))
			} else {
				lines = append(lines, fmt.Sprintf("%d: %v", appID, result.Result))
			}
		case <-time.After(commandResponseTimeout):
			lines = append(lines, fmt.Sprintf("%d: request timed out", appID))
		}
	}
	return strings.Join(lines, "\n")
}

// ownsReply answers ownership queries: exact appid match against the owned
// set, or substring match against owned titles.
func (b *Bot) ownsReply(arg string) string {
	if arg == "" {
		return "No query given!"
	}

	if appID, err := strconv.ParseUint(arg, 10, 32); err == nil {
		if b.ownsApp(uint32(appID)) {
			return fmt.Sprintf("Owned already: %d", appID)
		}
		return fmt.Sprintf("Not owned yet: %d", appID)
	}

	query := strings.ToLower(arg)
	var matches []string
	b.mutex.Lock()
	owned := make([]uint32, 0, len(b.ownedApps))
	for appID := range b.ownedApps {
		owned = append(owned, appID)
	}
	b.mutex.Unlock()

	for _, appID := range owned {
		title := LookupAppName(appID)
		if title != "" && strings.Contains(strings.ToLower(title), query) {
			matches = append(matches, fmt.Sprintf("%d (%s)", appID, title))
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("Not owned yet: %s", arg)
	}
	return "Owned already: " + strings.Join(matches, ", ")
}

// playReply switches between manual and automatic playing mode
func (b *Bot) playReply(arg string) string {
	b.mutex.Lock()
	client := b.client
	loggedOn := b.loggedOn
	b.mutex.Unlock()
	if client == nil || !loggedOn {
		return "This bot instance is not connected!"
	}

	if arg == "" {
		// Back to automatic mode
		b.mutex.Lock()
		b.manualPlay = false
		b.mutex.Unlock()
		b.StartFarming()
		return "Done!"
	}

	var apps []uint32
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		appID, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return fmt.Sprintf("%s is not a valid appID!", field)
		}
		apps = append(apps, uint32(appID))
	}

	b.mutex.Lock()
	b.manualPlay = true
	b.farming = false
	b.farmingApps = nil
	b.mutex.Unlock()
	client.SetGamesPlayed(apps...)
	return "Done!"
}

// twoFactorReply emits the current Steam Guard code
func (b *Bot) twoFactorReply() string {
	state := b.session.State()
	if state.SharedSecret == "" {
		return "No two-factor material stored for this bot!"
	}
	code, err := GenerateAuthCode(state.SharedSecret, time.Now())
	if err != nil {
		return fmt.Sprintf("Failed to generate code: %v", err)
	}
	return "Two-factor code: " + code
}

// rankReply reports the clan rank of the given profile id, defaulting to
// this bot's own identity. The bot's own rank is served from cache when
// available.
func (b *Bot) rankReply(arg string) string {
	if b.config.ClanID == 0 {
		return "This bot has no clan configured!"
	}

	profileID := b.SteamID64()
	if arg != "" {
		parsed, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Sprintf("%s is not a valid profile id!", arg)
		}
		profileID = parsed
	}

	if profileID == b.SteamID64() {
		b.mutex.Lock()
		cached := b.cachedClanRank
		b.mutex.Unlock()
		if cached > 0 {
			return fmt.Sprintf("Rank of %d in clan %d: %d", profileID, b.config.ClanID, cached)
		}
	}

	rank, err := b.web.GetClanRank(b.config.ClanID, steamid.SteamId(profileID))
	if err != nil {
		return "Clan rank is unavailable right now!"
	}
	if rank == 0 {
		return fmt.Sprintf("%d is not a member of clan %d!", profileID, b.config.ClanID)
	}
	if profileID == b.SteamID64() {
		b.mutex.Lock()
		b.cachedClanRank = rank
		b.mutex.Unlock()
	}
	return fmt.Sprintf("Rank of %d in clan %d: %d", profileID, b.config.ClanID, rank)
}

// rejoinChat re-enters the configured clan chat
func (b *Bot) rejoinChat() {
	if b.config.ClanID == 0 {
		return
	}
	b.mutex.Lock()
	client := b.client
	loggedOn := b.loggedOn
	b.mutex.Unlock()
	if client == nil || !loggedOn {
		return
	}
	client.JoinChat(steamid.SteamId(b.config.ClanID))
}

// statusReply describes this bot's farming state
func (b *Bot) statusReply() string {
	st := b.Status()
	if !st.KeepRunning && !st.Connected {
		return fmt.Sprintf("Bot %s is not running.", b.Name)
	}
	if !st.LoggedOn {
		return fmt.Sprintf("Bot %s is %s.", b.Name, st.State)
	}
	if len(st.FarmingApps) == 0 {
		return fmt.Sprintf("Bot %s is not farming anything.", b.Name)
	}

	ids := make([]string, len(st.FarmingApps))
	for i, appID := range st.FarmingApps {
		ids[i] = strconv.FormatUint(uint64(appID), 10)
	}
	return fmt.Sprintf("Bot %s is farming appIDs: %s and has %d games left to farm.",
		b.Name, strings.Join(ids, ", "), len(st.FarmingApps))
}

// statusAllReply dumps per-bot status plus fleet counts
func (b *Bot) statusAllReply() string {
	bots := b.registry.All()
	running := 0
	lines := make([]string, 0, len(bots)+1)
	for _, bot := range bots {
		lines = append(lines, bot.statusReply())
		if bot.Status().KeepRunning {
			running++
		}
	}
	lines = append(lines, fmt.Sprintf("Currently %d/%d bots are running.", running, len(bots)))
	return strings.Join(lines, "\n")
}
