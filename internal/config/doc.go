// Package config loads bacscan settings.
//
// Settings come from three layers, later layers winning:
//  1. a YAML file (defaults when it does not exist)
//  2. BACNET_* environment variables (see ApplyEnv)
//  3. command line flags, applied by cmd/bacscan
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/bacscan/config.yaml or $HOME/.config/bacscan/config.yaml
//   - macOS: $HOME/.config/bacscan/config.yaml
//   - Windows: %LOCALAPPDATA%\bacscan\config.yaml
//
// # Example
//
//	version: 1
//	datalink: bip
//	bip:
//	  interface: eth0
//	  port: 47808
//	  bbmd:
//	    address: 10.0.0.1
//	    port: 47808
//	    time_to_live: 60
//	apdu:
//	  timeout_ms: 3000
//	  retries: 3
//
// Private keys referenced by sc.key_file are read from disk when the
// datalink starts; their contents are never copied into this file.
package config
