// Package logging provides structured logging for bacscan.
//
// This package wraps a global zap logger with convenience functions. The
// logger is silent by default so that command output stays clean: the
// whois table on stdout is parsed by other programs.
//
// # Enabling Output
//
// Logging is enabled by, in order of precedence:
//   - the --log-level flag ("debug", "info", "warn", "error")
//   - the BACSCAN_LOG_LEVEL environment variable
//   - the BACNET_DEBUG environment variable (any value selects "debug")
//
// All entries are written to stderr in console format:
//
//	2025-11-25T10:30:45.123-0800  DEBUG  session/discovery.go:142  Received I-Am
//	  device_id=1234 mac=192.168.1.20:47808 max_apdu=480
//
// # Protocol Logging
//
//	logging.LogSend("who-is", dest.String(), attempt, npdu)
//	logging.LogPeer(id, mac, maxAPDU, vendor, "added")
//	logging.LogRawBytes("BVLL received", frame)
package logging
