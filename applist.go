package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AppListURL is the public appid -> title catalogue
const AppListURL = "https://api.steampowered.com/ISteamApps/GetAppList/v2/"

// How often the catalogue is refreshed
const appListUpdateInterval = 24 * time.Hour

type appListResponse struct {
	AppList struct {
		Apps []struct {
			AppID uint32 `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

var (
	appListMutex sync.RWMutex
	appNames     map[uint32]string
)

// LoadAppList fetches the app catalogue, falling back to the cached copy on
// disk when the fetch fails.
func LoadAppList() error {
	data, err := fetchAppList()
	if err != nil {
		LogWarning("Failed to fetch app list: %v", err)
		data, err = os.ReadFile(appListCachePath())
		if err != nil {
			return fmt.Errorf("no app list available: %v", err)
		}
		LogInfo("Using cached app list")
	} else {
		saveAppListCache(data)
	}

	var parsed appListResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse app list: %v", err)
	}

	names := make(map[uint32]string, len(parsed.AppList.Apps))
	for _, app := range parsed.AppList.Apps {
		if app.Name != "" {
			names[app.AppID] = app.Name
		}
	}

	appListMutex.Lock()
	appNames = names
	appListMutex.Unlock()

	LogInfo("Loaded %d app titles", len(names))
	return nil
}

// LookupAppName returns the title of an appid, or "" when unknown
func LookupAppName(appID uint32) string {
	appListMutex.RLock()
	defer appListMutex.RUnlock()
	return appNames[appID]
}

// StartAppListUpdater loads the catalogue and refreshes it periodically
func StartAppListUpdater() {
	if err := LoadAppList(); err != nil {
		LogWarning("App list unavailable: %v (title matching disabled)", err)
	}

	go func() {
		ticker := time.NewTicker(appListUpdateInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := LoadAppList(); err != nil {
				LogWarning("App list refresh failed: %v", err)
			}
		}
	}()
}

func fetchAppList() ([]byte, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(AppListURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func appListCachePath() string {
	dir := os.Getenv(LogDirEnvVar)
	if dir == "" {
		dir = DefaultLogDir
	}
	return filepath.Join(dir, "applist.json")
}

func saveAppListCache(data []byte) {
	path := appListCachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		LogWarning("Failed to cache app list: %v", err)
	}
}
