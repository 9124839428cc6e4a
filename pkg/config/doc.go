// Package config provides configuration management for tally.
//
// Configuration is read from a YAML file, filled with defaults, overridden
// from the environment and validated.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("tally.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("tally.yaml")
//
//  3. From a file that may not exist:
//     cfg, err := config.LoadOptional("tally.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TALLY_SECTION_FIELD:
//
//   - TALLY_RULES_PATH overrides rules.path
//   - TALLY_RULES_MATCH_MODE overrides rules.match_mode
//   - TALLY_CACHE_DRIVER overrides cache.driver
//   - TALLY_LOG_LEVEL overrides logging.level
//
// Configuration values are applied in this order, later overriding
// earlier: defaults, the YAML file, environment variables.
//
// # Example
//
//	rules:
//	  path: tally.rules
//	  match_mode: most_specific
//	data:
//	  transactions: [transactions.json]
//	  sources:
//	    payroll: payroll.json
//	cache:
//	  dir: .tally
//	  driver: sqlite
//	logging:
//	  level: info
//	  format: text
//	watch:
//	  debounce: 250ms
//	  rebuild_schedule: "0 * * * *"
//
// There is no global configuration. LoadOptional returns a *Config
// that callers pass to the components they build.
package config
