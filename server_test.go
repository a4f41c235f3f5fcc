package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func commandRequest(input, botName string) *http.Request {
	query := url.Values{"input": {input}}
	if botName != "" {
		query.Set("bot", botName)
	}
	return httptest.NewRequest("GET", "/command?"+query.Encode(), nil)
}

func TestIPCCommandRequiresInput(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, httptest.NewRequest("GET", "/command", nil))

	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "No input given" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestIPCCommandUnknownBot(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, commandRequest("!status", "dave"))

	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "Couldn't find any bot named dave!" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestIPCCommandRunsAsOwner(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, commandRequest("!status", "alice"))

	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Reply != "Bot alice is not running." {
		t.Fatalf("reply = %q", resp.Reply)
	}
}

func TestIPCCommandFallsBackToAnyBot(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, commandRequest("!status", ""))

	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
}

func TestIPCCommandNoBotsConfigured(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, commandRequest("!status", ""))

	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "No bots are configured" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestIPCHealth(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	bot, fc := fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "unhealthy" || len(resp.Bots) != 1 {
		t.Fatalf("response = %+v", resp)
	}

	markLoggedOn(bot, fc)
	rec = httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status after logon = %q", resp.Status)
	}
}

func TestIPCActivityRequiresKnownBot(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleActivity(rec, httptest.NewRequest("GET", "/activity", nil))
	var resp ActivityResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "No bot given" {
		t.Fatalf("response = %+v", resp)
	}

	rec = httptest.NewRecorder()
	server.handleActivity(rec, httptest.NewRequest("GET", "/activity?bot=dave", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "Couldn't find any bot named dave!" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestIPCActivityEmptyWithoutDatabase(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	fleet.addBot(t, BotConfig{Name: "alice", Username: "alice", Password: "pw", MasterID: masterAlice}, nil)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleActivity(rec, httptest.NewRequest("GET", "/activity?bot=alice&limit=10", nil))
	var resp ActivityResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Activity) != 0 {
		t.Fatalf("activity without database = %+v", resp.Activity)
	}
}

func TestIPCCommandRejectsUnsupportedMethod(t *testing.T) {
	fleet := newTestFleet(t, fleetOwner)
	server := NewIPCServer(fleet.registry, fleetOwner, 0)

	rec := httptest.NewRecorder()
	server.handleCommand(rec, httptest.NewRequest("DELETE", "/command?input=x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
