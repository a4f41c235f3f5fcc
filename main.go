package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

// processSignals carries owner-initiated process control requests ("exit"
// or "restart") from the dispatcher to the main loop.
var processSignals = make(chan string, 1)

// requestProcessSignal raises one process control request; later requests
// while one is pending are dropped.
func requestProcessSignal(signal string) {
	select {
	case processSignals <- signal:
	default:
	}
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		LogWarning("Error loading .env file: %v", err)
	}

	InitLogger()
	defer CloseLogger()

	LogInfo("Starting Steam farm fleet")

	configFile := getEnvDefault("CONFIG_FILE", "config.yaml")
	config, err := LoadConfig(configFile)
	if err != nil {
		LogError("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	LogInfo("Loaded configuration with %d bot(s)", len(config.Bots))

	// The activity log is optional, like any audit trail
	if err := InitDB(); err != nil {
		LogWarning("Failed to initialize database: %v", err)
		LogInfo("Continuing without database support - activity logging will be disabled")
	} else {
		LogInfo("Database connection established successfully")
		defer CloseDB()
	}

	StartAppListUpdater()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry()
	throttle := NewLoginThrottle(time.Duration(config.LoginLimiterDelay) * time.Second)
	prompter := NewPrompter()

	var botsDown sync.WaitGroup
	for i := range config.Bots {
		web, err := NewSteamWebClient(config.Bots[i].Username, config.Bots[i].ProxyIndex)
		if err != nil {
			LogError("Failed to create web client for bot %s: %v", config.Bots[i].Name, err)
			continue
		}
		bot, err := NewBot(config.Bots[i], config, registry, throttle, prompter, web, ctx)
		if err != nil {
			LogError("Failed to create bot %s: %v", config.Bots[i].Name, err)
			continue
		}
		botsDown.Add(1)
		bot.SetOnDown(func(b *Bot) {
			LogBotInfo(b.Name, "Down")
			botsDown.Done()
		})
		if bot.config.Paused {
			LogBotInfo(bot.Name, "Paused, not starting")
			continue
		}
		bot.Start()
	}

	server := NewIPCServer(registry, config.OwnerID, config.IPCPort)
	go server.Start()

	go collectMetrics(registry)

	// Owner commands and OS signals both end up on processSignals
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-osSignals
		requestProcessSignal("exit")
	}()

	request := <-processSignals
	LogInfo("Process %s requested, shutting down fleet", request)

	for _, bot := range registry.All() {
		go bot.Shutdown()
	}

	// The process may exit only once the last account and the command
	// listener are down
	botsDown.Wait()
	server.Stop()

	if request == "restart" {
		LogInfo("Restarting process")
		cmd := exec.Command(os.Args[0], os.Args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		if err := cmd.Start(); err != nil {
			LogError("Failed to restart: %v", err)
		}
	}

	LogInfo("Shutdown complete")
}

// collectMetrics keeps the running-bots gauge current
func collectMetrics(registry *Registry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		running := 0
		for _, bot := range registry.All() {
			if bot.Status().KeepRunning {
				running++
			}
		}
		metricBotsRunning.Set(float64(running))
	}
}
