package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultCommandPrefix     = "!"
	DefaultLoginLimiterDelay = 10 // seconds between fleet-wide logon attempts
	DefaultIPCPort           = 1242
	DefaultDataDir           = "data"
	DefaultConfirmsPeriod    = 15 // minutes
	DefaultLootPeriod        = 8  // hours
)

// GiftAppID and GiftContextID identify the Steam community inventory context
// that holds unwrapped gifts; this bucket is drained gift-by-gift instead of
// via trade offers.
const (
	GiftAppID     = 753
	GiftContextID = 1
)

// LootableSet names one inventory bucket eligible for automatic settlement
// to the master account.
type LootableSet struct {
	AppID     uint32 `yaml:"appId"`
	ContextID uint64 `yaml:"contextId"`
}

// BotConfig holds the static per-account configuration
type BotConfig struct {
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// MasterID is the SteamID64 authorized to command this bot and the
	// target of loot settlement.
	MasterID uint64 `yaml:"masterId"`

	ClanID     uint64 `yaml:"clanId"`
	TradeToken string `yaml:"tradeToken"`

	// Periodic task intervals; zero disables the timer
	ConfirmsPeriodMinutes int `yaml:"confirmsPeriodMinutes"`
	LootPeriodHours       int `yaml:"lootPeriodHours"`

	LootableSets []LootableSet `yaml:"lootableSets"`

	// FarmApps is the static candidate set handed to the default farming
	// strategy
	FarmApps []uint32 `yaml:"farmApps"`

	// Policy flags
	DistributeGifts bool `yaml:"distributeGifts"`
	ValidateKeys    bool `yaml:"validateKeys"`
	Paused          bool `yaml:"paused"`

	// Parental gate
	ParentalPIN  string `yaml:"parentalPin"`
	ParentalGate bool   `yaml:"parentalGate"`

	// ProxyIndex selects the [session] slot in PROXY_URL, 0 disables
	ProxyIndex int `yaml:"proxyIndex"`
}

// FleetConfig is the whole YAML configuration file
type FleetConfig struct {
	// OwnerID is the single SteamID64 allowed to run fleet-destructive
	// commands (exit, restart, statusall, rejoinchat).
	OwnerID uint64 `yaml:"ownerId"`

	CommandPrefix     string `yaml:"commandPrefix"`
	LoginLimiterDelay int    `yaml:"loginLimiterDelay"`
	IPCPort           int    `yaml:"ipcPort"`
	DataDir           string `yaml:"dataDir"`

	Bots []BotConfig `yaml:"bots"`
}

// LoadConfig reads and validates the fleet configuration file
func LoadConfig(path string) (*FleetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var cfg FleetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	cfg.applyDefaults()

	seen := make(map[string]bool)
	for i := range cfg.Bots {
		bot := &cfg.Bots[i]
		if bot.Name == "" {
			return nil, fmt.Errorf("bot #%d has no name", i)
		}
		if seen[bot.Name] {
			return nil, fmt.Errorf("duplicate bot name: %s", bot.Name)
		}
		seen[bot.Name] = true
		if bot.Username == "" {
			bot.Username = bot.Name
		}
		if bot.ConfirmsPeriodMinutes == 0 {
			bot.ConfirmsPeriodMinutes = DefaultConfirmsPeriod
		}
		if bot.LootPeriodHours == 0 {
			bot.LootPeriodHours = DefaultLootPeriod
		}
	}

	return &cfg, nil
}

func (c *FleetConfig) applyDefaults() {
	if c.CommandPrefix == "" {
		c.CommandPrefix = DefaultCommandPrefix
	}
	if c.LoginLimiterDelay == 0 {
		c.LoginLimiterDelay = DefaultLoginLimiterDelay
	}
	if c.IPCPort == 0 {
		c.IPCPort = DefaultIPCPort
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
}
