package config

import "time"

var defaults = map[string]any{
	"log_level": "info",

	"http.addr":             ":8080",
	"http.shutdown_timeout": 10 * time.Second,

	"database.driver": "sqlite",
	"database.path":   "data.db",
	"database.dsn":    "",

	"jwt.secret": "",
	"jwt.ttl":    72 * time.Hour,

	"mqtt.broker":       "", // disabled
	"mqtt.client_id":    "rollingdoor-backend",
	"mqtt.topic_prefix": "rollingdoor",
	"mqtt.username":     "",
	"mqtt.password":     "",

	"access.invite_ttl":     5 * time.Minute,
	"access.pending_ttl":    48 * time.Hour,
	"access.sweep_interval": time.Hour,

	"session.write_timeout": 5 * time.Second,
	"session.ping_interval": 30 * time.Second,
}

// Defaults returns a copy of the built-in configuration values.
func Defaults() map[string]any {
	out := make(map[string]any, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out
}
