package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steam_farm_logins_total",
		Help: "Successful logons across the fleet",
	})
	metricCommands = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steam_farm_commands_total",
		Help: "Commands accepted by the dispatcher",
	})
	metricTradesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steam_farm_trades_sent_total",
		Help: "Trade offer batches sent during loot settlement",
	})
	metricKeysRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steam_farm_keys_redeemed_total",
		Help: "Product keys redeemed successfully",
	})
	metricBotsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steam_farm_bots_running",
		Help: "Bots whose run flag is currently set",
	})
)
