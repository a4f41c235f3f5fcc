package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IPCServer is the remote command endpoint: a basic synchronous
// request/reply transport that forwards text commands to the dispatcher
// using the process owner's identity as the implicit requester.
type IPCServer struct {
	registry *Registry
	ownerID  uint64
	server   *http.Server
}

// NewIPCServer builds the endpoint on the configured port
func NewIPCServer(registry *Registry, ownerID uint64, port int) *IPCServer {
	s := &IPCServer{
		registry: registry,
		ownerID:  ownerID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/activity", s.handleActivity)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Stop is called
func (s *IPCServer) Start() {
	LogInfo("Starting IPC server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		LogError("IPC server failed: %v", err)
	}
}

// Stop shuts the endpoint down
func (s *IPCServer) Stop() {
	s.server.Close()
}

// handleCommand forwards one text command to a bot's dispatcher
func (s *IPCServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "GET" && r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	input := r.URL.Query().Get("input")
	if input == "" {
		sendJSONResponse(w, CommandResponse{
			Success: false,
			Error:   "No input given",
		})
		return
	}

	var bot *Bot
	if name := r.URL.Query().Get("bot"); name != "" {
		bot = s.registry.Get(name)
		if bot == nil {
			sendJSONResponse(w, CommandResponse{
				Success: false,
				Error:   fmt.Sprintf("Couldn't find any bot named %s!", name),
			})
			return
		}
	} else {
		bot = s.registry.First()
		if bot == nil {
			sendJSONResponse(w, CommandResponse{
				Success: false,
				Error:   "No bots are configured",
			})
			return
		}
	}

	LogInfo("IPC command for bot %s: %s", bot.Name, input)
	reply := bot.HandleMessage(s.ownerID, input)
	sendJSONResponse(w, CommandResponse{
		Success: true,
		Reply:   reply,
	})
}

// handleHealth dumps the status of every bot
func (s *IPCServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	bots := s.registry.All()
	statuses := make([]BotStatus, 0, len(bots))
	healthy := false
	for _, bot := range bots {
		status := bot.Status()
		statuses = append(statuses, status)
		if status.LoggedOn {
			healthy = true
		}
	}

	overall := "unhealthy"
	if healthy {
		overall = "healthy"
	}
	sendJSONResponse(w, HealthResponse{
		Status: overall,
		Bots:   statuses,
	})
}

// handleActivity serves the audit trail of one bot. Empty without a database
// connection, like the logging side.
func (s *IPCServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	name := r.URL.Query().Get("bot")
	if name == "" {
		sendJSONResponse(w, ActivityResponse{
			Success: false,
			Error:   "No bot given",
		})
		return
	}
	if s.registry.Get(name) == nil {
		sendJSONResponse(w, ActivityResponse{
			Success: false,
			Error:   fmt.Sprintf("Couldn't find any bot named %s!", name),
		})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	activity, err := RecentActivity(name, limit)
	if err != nil {
		sendJSONResponse(w, ActivityResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to read activity: %v", err),
		})
		return
	}
	sendJSONResponse(w, ActivityResponse{
		Success:  true,
		Activity: activity,
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
