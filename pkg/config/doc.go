// Package config loads process settings and pipeline definitions.
//
// # Settings
//
// Settings are read with viper from an optional file (relay.yaml in the
// working directory or $HOME/.relay by default) and from RELAY_* environment
// variables, nested keys joined with underscores:
//
//	RELAY_LOG_LEVEL=debug
//	RELAY_METRICS_ADDR=:9090
//	RELAY_DEFAULTS_ERROR_HANDLING_MAX_RETRIES=5
//
// # Pipeline files
//
// Pipeline files are YAML, either a single pipeline or a list under
// "pipelines". ${VAR} and ${VAR:-default} references are substituted from
// the environment before parsing:
//
//	pipelines:
//	  - name: orders
//	    schedule: "*/15 * * * *"
//	    source:
//	      adapter: http
//	      endpoint: orders
//	      credential: shop
//	      config:
//	        base_url: ${SHOP_URL}
//	        pagination: offset
//	      pagination:
//	        items_per_page: 100
//	    target:
//	      adapter: sql
//	      endpoint: orders
//	      config:
//	        dialect: postgres
//	        dsn: ${WAREHOUSE_DSN}
//	    error_handling:
//	      max_retries: 3
//	      retry_interval: 2s
//
// Values omitted from a pipeline fall back to Settings.Defaults.
package config
