package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"github.com/Philipp15b/go-steam/v3/steamid"
)

// Bot drives one managed account: its connection state machine, its command
// handling and its automation timers. All state transitions happen on the
// bot's own event loop; shared resources (registry, login throttle, prompt
// lock) are owned by the process.
type Bot struct {
	Name   string
	config BotConfig
	global *FleetConfig

	registry *Registry
	throttle *LoginThrottle
	prompter *Prompter
	session  *SessionStore
	web      WebClient
	farmer   FarmingStrategy

	// newClient builds the platform client; replaced by tests
	newClient func(*Bot) (PlatformClient, error)

	// onDown tells the process this bot is fully down
	onDown   func(*Bot)
	downOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mutex           sync.Mutex
	client          PlatformClient
	state           string
	keepRunning     bool
	loopRunning     bool
	loggedOn        bool
	operatorStop    bool
	invalidPassword bool
	loggedElsewhere bool
	authCode        string
	twoFactorCode   string
	parentalPIN     string
	cachedClanRank  int
	farming         bool
	manualPlay      bool
	farmingApps     []uint32
	ownedApps       map[uint32]bool
	timersStarted   bool

	// cmdMutex serializes this bot's command execution; other bots are
	// unaffected while a command is in flight.
	cmdMutex sync.Mutex

	// purchaseResult and licenseResult correlate redeem/license requests
	// with their asynchronous responses
	purchaseResult chan PurchaseResponseEvent
	licenseResult  chan FreeLicenseEvent
}

// NewBot constructs a bot and registers it in the fleet registry. A second
// construction under an already-registered name returns the live instance
// without creating a new one.
func NewBot(config BotConfig, global *FleetConfig, registry *Registry, throttle *LoginThrottle, prompter *Prompter, web WebClient, parentCtx context.Context) (*Bot, error) {
	if existing := registry.Get(config.Name); existing != nil {
		return existing, nil
	}

	session, err := OpenSessionStore(global.DataDir, config.Name)
	if err != nil {
		return nil, fmt.Errorf("bot %s: %v", config.Name, err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	b := &Bot{
		Name:           config.Name,
		config:         config,
		global:         global,
		registry:       registry,
		throttle:       throttle,
		prompter:       prompter,
		session:        session,
		web:            web,
		farmer:         StaticFarmingStrategy{},
		state:          BotStateIdle,
		ownedApps:      make(map[uint32]bool),
		ctx:            ctx,
		cancel:         cancel,
		purchaseResult: make(chan PurchaseResponseEvent, 1),
		licenseResult:  make(chan FreeLicenseEvent, 1),
	}
	b.newClient = func(bot *Bot) (PlatformClient, error) {
		return NewSteamClient(), nil
	}

	if !registry.Register(b) {
		// Lost the race; hand back whoever won
		cancel()
		return registry.Get(config.Name), nil
	}
	return b, nil
}

// SetOnDown installs the process-level down notification
func (b *Bot) SetOnDown(fn func(*Bot)) {
	b.onDown = fn
}

// SteamID64 returns the bot's resolved platform identity, 0 when unknown
func (b *Bot) SteamID64() uint64 {
	return b.session.State().SteamID
}

// IsMaster reports whether id is this bot's configured master
func (b *Bot) IsMaster(id uint64) bool {
	return id != 0 && id == b.config.MasterID
}

// IsOwner reports whether id is the process owner
func (b *Bot) IsOwner(id uint64) bool {
	return id != 0 && id == b.global.OwnerID
}

// Status returns a snapshot for the health endpoint and status commands
func (b *Bot) Status() BotStatus {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return BotStatus{
		Name:        b.Name,
		State:       b.state,
		Connected:   b.client != nil && b.client.Connected(),
		LoggedOn:    b.loggedOn,
		KeepRunning: b.keepRunning,
		FarmingApps: append([]uint32(nil), b.farmingApps...),
	}
}

// Start brings the bot up. Starting an already-running bot is an informative
// no-op.
func (b *Bot) Start() string {
	b.mutex.Lock()
	if b.state == BotStateShuttingDown {
		b.mutex.Unlock()
		return "That bot instance is shutting down!"
	}
	if b.loopRunning || (b.client != nil && b.client.Connected()) {
		b.mutex.Unlock()
		return "That bot instance is already running!"
	}
	b.keepRunning = true
	b.operatorStop = false
	b.loopRunning = true
	b.state = BotStateConnecting
	// A pending one-time code would expire while waiting for the fleet
	// login slot, so skip the throttle in that case.
	skipThrottle := b.authCode != "" || b.twoFactorCode != ""
	startTimers := !b.timersStarted
	b.timersStarted = true
	b.mutex.Unlock()

	LogBotInfo(b.Name, "Starting")
	go b.runLoop()
	if startTimers {
		go b.runConfirmationTimer()
		go b.runLootTimer()
	}
	go b.connect(skipThrottle)
	return "Done!"
}

// Stop takes the bot down. Stopping an already-stopped bot is an informative
// no-op. Up to DisconnectRetryBudget disconnect attempts are issued; the
// call never blocks indefinitely.
func (b *Bot) Stop() string {
	b.mutex.Lock()
	b.keepRunning = false
	b.operatorStop = true
	client := b.client
	b.mutex.Unlock()

	if client == nil || !client.Connected() {
		return "That bot instance is already inactive!"
	}

	for attempt := 1; attempt <= DisconnectRetryBudget; attempt++ {
		client.Disconnect()
		time.Sleep(DisconnectRetrySleep)
		if !client.Connected() {
			LogBotInfo(b.Name, "Disconnected after %d attempt(s)", attempt)
			return "Done!"
		}
	}
	LogBotWarning(b.Name, "Could not confirm disconnection within %d attempts", DisconnectRetryBudget)
	return "Done!"
}

// Restart stops and starts the bot
func (b *Bot) Restart() string {
	b.Stop()
	return b.Start()
}

// Shutdown takes the bot down permanently and notifies the process
func (b *Bot) Shutdown() {
	b.mutex.Lock()
	alreadyDown := b.state == BotStateShuttingDown
	b.mutex.Unlock()
	if alreadyDown {
		return
	}

	b.Stop()

	b.mutex.Lock()
	b.state = BotStateShuttingDown
	b.mutex.Unlock()
	b.cancel()

	b.downOnce.Do(func() {
		if b.onDown != nil {
			b.onDown(b)
		}
	})
}

// connect applies the fleet login throttle and issues the connect request.
// A failed connect request logs and stops; the bot must be started again
// explicitly.
func (b *Bot) connect(skipThrottle bool) {
	if !skipThrottle {
		if err := b.throttle.Acquire(b.ctx); err != nil {
			return
		}
	}

	b.mutex.Lock()
	if !b.keepRunning {
		b.mutex.Unlock()
		return
	}
	client := b.client
	b.mutex.Unlock()

	if client == nil {
		fresh, err := b.newClient(b)
		if err != nil {
			LogBotError(b.Name, "Failed to create platform client: %v", err)
			b.mutex.Lock()
			b.keepRunning = false
			b.state = BotStateIdle
			b.mutex.Unlock()
			return
		}
		b.mutex.Lock()
		b.client = fresh
		client = fresh
		b.mutex.Unlock()
	}

	LogBotInfo(b.Name, "Connecting...")
	if err := client.Connect(); err != nil {
		LogBotError(b.Name, "Connection failed: %v", err)
		b.mutex.Lock()
		b.keepRunning = false
		b.state = BotStateIdle
		b.mutex.Unlock()
	}
}

// runLoop is the bot's sole driver of state transitions. It polls the
// connection on a fixed short interval for as long as the run flag is set or
// the transport reports connected, and is never invoked concurrently with
// itself.
func (b *Bot) runLoop() {
	ticker := time.NewTicker(CallbackPollInterval)
	defer ticker.Stop()
	defer func() {
		b.mutex.Lock()
		b.loopRunning = false
		b.mutex.Unlock()
	}()

	for {
		b.mutex.Lock()
		client := b.client
		keep := b.keepRunning
		b.mutex.Unlock()

		if client == nil {
			if !keep {
				return
			}
			select {
			case <-ticker.C:
			case <-b.ctx.Done():
				return
			}
			continue
		}

		select {
		case event := <-client.Events():
			b.handleEvent(event)
		case <-ticker.C:
			if !keep && !client.Connected() {
				return
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// handleEvent routes one platform event
func (b *Bot) handleEvent(event interface{}) {
	switch e := event.(type) {
	case ConnectedEvent:
		b.handleConnected()
	case ConnectFailedEvent:
		LogBotError(b.Name, "Connection failed: %v", e.Err)
		b.mutex.Lock()
		b.keepRunning = false
		b.state = BotStateIdle
		b.mutex.Unlock()
	case LoggedOnEvent:
		b.handleLogOnResult(e)
	case LoggedOffEvent:
		b.handleLoggedOff(e.Result)
	case DisconnectedEvent:
		// Reconnect logic sleeps, so it runs off the event loop
		go b.handleDisconnected()
	case LoginKeyEvent:
		LogBotInfo(b.Name, "Received new login key")
		b.session.SetLoginKey(e.LoginKey, e.UniqueID)
	case MachineAuthEvent:
		b.handleMachineAuth(e.SentryHash)
	case ChatMessageEvent:
		go b.handleChatMessage(e)
	case PurchaseResponseEvent:
		select {
		case b.purchaseResult <- e:
		default:
		}
	case FreeLicenseEvent:
		for _, app := range e.GrantedAppIDs {
			b.markOwned(app)
		}
		select {
		case b.licenseResult <- e:
		default:
		}
	case ItemNotificationEvent:
		LogBotInfo(b.Name, "Received %d new item(s), restarting farming", e.Count)
		b.StartFarming()
	case WebSessionEvent:
		if err := b.web.Init(b.clientSteamID(), e.Nonce); err != nil {
			LogBotWarning(b.Name, "Failed to refresh web session: %v", err)
		}
	}
}

// handleConnected resolves login material and issues the authenticate
// request.
func (b *Bot) handleConnected() {
	LogBotInfo(b.Name, "Connected")

	b.mutex.Lock()
	b.state = BotStateAuthenticating
	authCode := b.authCode
	twoFactorCode := b.twoFactorCode
	client := b.client
	b.mutex.Unlock()

	username := b.config.Username
	password := b.config.Password
	if username == "" {
		username = b.prompter.Request(b.Name, InputLogin)
		b.config.Username = username
	}
	if password == "" {
		state := b.session.State()
		if state.LoginKey == "" {
			password = b.prompter.Request(b.Name, InputPassword)
			b.config.Password = password
		}
	}

	state := b.session.State()
	var sentryHash []byte
	if len(state.SentryHash) > 0 {
		sentryHash = state.SentryHash
	}

	client.LogOn(LogOnDetails{
		Username:      username,
		Password:      password,
		AuthCode:      authCode,
		TwoFactorCode: twoFactorCode,
		LoginKey:      state.LoginKey,
		SentryHash:    sentryHash,
	})
}

// handleLogOnResult applies the authenticate outcome
func (b *Bot) handleLogOnResult(e LoggedOnEvent) {
	switch e.Result {
	case steamlang.EResult_OK:
		b.handleLoggedOn(e)

	case steamlang.EResult_AccountLogonDenied:
		LogBotInfo(b.Name, "Account requires email guard code")
		code := b.prompter.Request(b.Name, InputAuthCode)
		b.mutex.Lock()
		b.authCode = code
		b.mutex.Unlock()
		b.reissueAuth()

	case steamlang.EResult_AccountLoginDeniedNeedTwoFactor,
		steamlang.EResult_TwoFactorCodeMismatch:
		b.resolveTwoFactorCode()
		b.reissueAuth()

	case steamlang.EResult_InvalidPassword:
		LogBotWarning(b.Name, "Invalid password or stale login key")
		b.mutex.Lock()
		b.invalidPassword = true
		b.mutex.Unlock()

	case steamlang.EResult_LoggedInElsewhere, steamlang.EResult_AlreadyLoggedInElsewhere:
		LogBotWarning(b.Name, "Account is logged in elsewhere")
		b.mutex.Lock()
		b.loggedElsewhere = true
		b.mutex.Unlock()

	default:
		if transientResults[e.Result] {
			LogBotWarning(b.Name, "Transient logon failure: %v", e.Result)
			return
		}
		LogBotError(b.Name, "Unexpected logon result %v, shutting down", e.Result)
		go b.Shutdown()
	}
}

// handleLoggedOn runs the post-authentication sequence
func (b *Bot) handleLoggedOn(e LoggedOnEvent) {
	LogBotInfo(b.Name, "Successfully logged on")

	steamID := uint64(e.SteamID)
	if steamID == 0 {
		steamID = uint64(b.clientSteamID())
	}
	b.session.SetIDs(steamID, steamid.SteamId(steamID).GetAccountId())
	if b.session.State().DeviceID == "" && steamID != 0 {
		b.session.SetDeviceID(DeriveDeviceID(steamID))
	}

	b.mutex.Lock()
	b.state = BotStateActive
	b.loggedOn = true
	b.authCode = ""
	b.twoFactorCode = ""
	b.invalidPassword = false
	b.loggedElsewhere = false
	client := b.client
	b.mutex.Unlock()

	if b.config.ParentalPIN == "" && b.parentalPIN == "" && b.config.ParentalGate {
		b.parentalPIN = b.prompter.Request(b.Name, InputParentalPIN)
	}

	if err := b.web.Init(steamid.SteamId(steamID), e.WebAuthNonce); err != nil {
		LogBotError(b.Name, "Failed to initialize web session: %v, restarting", err)
		go b.Restart()
		return
	}

	if b.config.ClanID != 0 {
		if rank, err := b.web.GetClanRank(b.config.ClanID, steamid.SteamId(steamID)); err == nil {
			b.mutex.Lock()
			b.cachedClanRank = rank
			b.mutex.Unlock()
		}
		client.JoinChat(steamid.SteamId(b.config.ClanID))
	}

	go func() {
		if _, err := b.AcceptConfirmations(ConfirmationTypeUnknown); err != nil {
			LogBotDebugConfirmations(b.Name, err)
		}
	}()

	b.StartFarming()
	activityLog(b.Name, activityLogin, fmt.Sprintf("logged on as %d", steamID))
	metricLogins.Inc()
}

// LogBotDebugConfirmations keeps confirmation noise at debug level
func LogBotDebugConfirmations(botName string, err error) {
	LogDebug("Bot %s: confirmation pass skipped: %v", botName, err)
}

// resolveTwoFactorCode produces a two-factor code from stored material when
// available, otherwise asks the operator.
func (b *Bot) resolveTwoFactorCode() {
	state := b.session.State()
	var code string
	if state.SharedSecret != "" {
		generated, err := GenerateAuthCode(state.SharedSecret, time.Now())
		if err != nil {
			LogBotWarning(b.Name, "Failed to generate two-factor code: %v", err)
		} else {
			code = generated
		}
	}
	if code == "" {
		code = b.prompter.Request(b.Name, InputTwoFactorCode)
	}
	b.mutex.Lock()
	b.twoFactorCode = code
	b.mutex.Unlock()
}

// reissueAuth re-runs the authenticate request when the transport survived
// the failed attempt; otherwise the reconnect path picks the codes up.
func (b *Bot) reissueAuth() {
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client != nil && client.Connected() {
		b.handleConnected()
	}
}

// handleLoggedOff records a remote-side session end
func (b *Bot) handleLoggedOff(result steamlang.EResult) {
	LogBotWarning(b.Name, "Logged off: %v", result)
	b.mutex.Lock()
	b.loggedOn = false
	if result == steamlang.EResult_LoggedInElsewhere || result == steamlang.EResult_AlreadyLoggedInElsewhere {
		b.loggedElsewhere = true
	}
	b.mutex.Unlock()
}

// handleMachineAuth persists the fresh sentry hash and acknowledges it,
// exactly once per update. The hash is presented at the next logon so the
// remote side skips device verification.
func (b *Bot) handleMachineAuth(sentryHash []byte) {
	b.session.SetSentryHash(sentryHash)

	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client != nil {
		client.SendMachineAuthResponse(sentryHash)
	}
	LogBotInfo(b.Name, "Updated machine auth sentry")
}

// handleDisconnected decides whether and how to reconnect. Runs off the
// event loop because the throttled paths sleep.
func (b *Bot) handleDisconnected() {
	b.StopFarming()

	b.mutex.Lock()
	b.loggedOn = false
	keep := b.keepRunning
	operator := b.operatorStop
	invalidPw := b.invalidPassword
	elsewhere := b.loggedElsewhere
	b.invalidPassword = false
	b.loggedElsewhere = false
	// The client is kept across disconnects; the same transport reconnects
	if !keep || operator {
		b.state = BotStateIdle
		b.mutex.Unlock()
		LogBotInfo(b.Name, "Disconnected, not reconnecting")
		return
	}
	b.state = BotStateRetrying
	b.mutex.Unlock()

	if invalidPw {
		if b.session.ClearLoginKey() {
			// A stale login key explains the rejection; retry right away
			LogBotInfo(b.Name, "Removed stale login key, retrying")
		} else {
			LogBotWarning(b.Name, "Suspected throttling, sleeping for %v", InvalidPasswordSleep)
			if !b.sleep(InvalidPasswordSleep) {
				return
			}
		}
	}
	if elsewhere {
		LogBotWarning(b.Name, "Session was taken elsewhere, sleeping for %v", LoggedElsewhereSleep)
		if !b.sleep(LoggedElsewhereSleep) {
			return
		}
	}

	b.mutex.Lock()
	skipThrottle := b.authCode != "" || b.twoFactorCode != ""
	b.mutex.Unlock()
	b.connect(skipThrottle)
}

// handleChatMessage feeds an incoming message to the dispatcher and sends
// the reply, if any
func (b *Bot) handleChatMessage(e ChatMessageEvent) {
	reply := b.HandleMessage(uint64(e.SenderID), e.Message)
	if reply == "" {
		return
	}
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client == nil {
		return
	}
	if e.ChatRoomID != 0 {
		client.SendChatMessage(e.ChatRoomID, reply)
	} else {
		client.SendChatMessage(e.SenderID, reply)
	}
}

// clientSteamID returns the transport-level identity when available
func (b *Bot) clientSteamID() steamid.SteamId {
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client == nil {
		return 0
	}
	return client.SteamID()
}

// markOwned records app ownership learned from license or purchase results
func (b *Bot) markOwned(appID uint32) {
	b.mutex.Lock()
	b.ownedApps[appID] = true
	b.mutex.Unlock()
}

// ownsApp reports whether the exact appid is in the owned set. Bundles are
// never expanded; only directly granted appids count as owned.
func (b *Bot) ownsApp(appID uint32) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.ownedApps[appID]
}

// sleep waits for d or until the bot is cancelled; returns false when
// cancelled
func (b *Bot) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-b.ctx.Done():
		return false
	}
}

// runConfirmationTimer drives periodic confirmation acceptance. Ticks are a
// fast no-op while the bot is not logged on.
func (b *Bot) runConfirmationTimer() {
	if b.config.ConfirmsPeriodMinutes <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(b.config.ConfirmsPeriodMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !b.isLoggedOn() {
				continue
			}
			if _, err := b.AcceptConfirmations(ConfirmationTypeUnknown); err != nil {
				LogBotDebugConfirmations(b.Name, err)
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// runLootTimer drives periodic loot settlement
func (b *Bot) runLootTimer() {
	if b.config.LootPeriodHours <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(b.config.LootPeriodHours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !b.isLoggedOn() {
				continue
			}
			LogBotInfo(b.Name, "Scheduled loot: %s", b.LootToMaster())
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bot) isLoggedOn() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.loggedOn
}
