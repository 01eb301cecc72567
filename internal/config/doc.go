// Package config handles configuration loading for reelchat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Every optional field has a default (see Defaults).
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from REELCHAT_CONFIG environment variable
//  2. ./config.yaml or ./config.toml (current directory)
//  3. ~/.config/reelchat/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${REELCHAT_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and push channel
//	  grpc_addr: "127.0.0.1:50051" # presence admin service, optional
//
//	database:
//	  driver: "sqlite"            # sqlite, mongo
//	  path: "/var/lib/reelchat/reelchat.db"
//	  mongo_uri: "mongodb://localhost:27017"
//	  mongo_database: "reelchat"
//
//	auth:
//	  jwt_secret: "${REELCHAT_JWT_SECRET}"
//	  token_ttl: "24h"
//
//	realtime:
//	  send_buffer: 64
//	  typing_rate: 2
//	  typing_burst: 4
//	  ping_interval: "30s"
//	  allowed_origins: ["app.example.com"]
//
//	messaging:
//	  history_page_size: 50
//	  max_content_length: 4000
//
//	tailscale:
//	  enabled: false
//	  hostname: "reelchat"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
