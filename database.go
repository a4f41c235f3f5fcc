package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// ActivityType classifies one activity-log row
type ActivityType int

// Activity types
const (
	activityLogin  ActivityType = 1
	activityTrade  ActivityType = 2
	activityGift   ActivityType = 3
	activityRedeem ActivityType = 4
)

// Activity is one audit row: something a bot did on the platform
type Activity struct {
	ID        int64        `json:"id"`
	Bot       string       `json:"bot"`
	Type      ActivityType `json:"type"`
	Detail    string       `json:"detail"`
	CreatedAt time.Time    `json:"createdAt"`
}

var db *sql.DB

// InitDB opens the activity-log database. The database is optional; callers
// are expected to continue without audit logging when this fails.
func InitDB() error {
	host := getEnvDefault("DB_HOST", "localhost")
	port := getEnvDefault("DB_PORT", "5432")
	user := getEnvDefault("DB_USER", "postgres")
	dbname := getEnvDefault("DB_NAME", "steam_farm")

	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required")
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS activity (
			id         BIGSERIAL PRIMARY KEY,
			bot        TEXT NOT NULL,
			type       SMALLINT NOT NULL,
			detail     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// activityLog records one audit row; a no-op without a database connection
func activityLog(bot string, activityType ActivityType, detail string) {
	if db == nil {
		return
	}
	_, err := db.Exec(
		`INSERT INTO activity (bot, type, detail, created_at) VALUES ($1, $2, $3, $4)`,
		bot, activityType, detail, time.Now(),
	)
	if err != nil {
		LogWarning("Failed to record activity for bot %s: %v", bot, err)
	}
}

// RecentActivity returns the latest audit rows for one bot
func RecentActivity(bot string, limit int) ([]Activity, error) {
	if db == nil {
		return nil, nil
	}
	rows, err := db.Query(
		`SELECT id, bot, type, detail, created_at FROM activity
		 WHERE bot = $1 ORDER BY created_at DESC LIMIT $2`,
		bot, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Bot, &a.Type, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// CloseDB closes the database connection
func CloseDB() {
	if db != nil {
		db.Close()
	}
}
