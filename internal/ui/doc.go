// Package ui renders the decoration around a bacscan session: a header
// naming the command and its parameters, a result box when it ends, and
// an optional live view of sends and replies.
//
// Everything here writes to stderr. Stdout is reserved for the address
// cache table, which other tools parse. When stderr is not a terminal the
// Printer stays silent.
//
// The live view (whois --watch) is a Bubble Tea program fed from the
// session's Observer hooks:
//
//	w := ui.StartWatch(os.Stderr, ui.NewWatchModel("Who-Is", budget, cancel))
//	obs := w.Observer()
//	res, err := session.NewDiscovery(t, cfg, session.WithObserver(&obs)).Run(ctx)
//	_ = w.Finish(err)
//
// Logging is controlled separately by BACSCAN_LOG_LEVEL; when it is unset
// zap is silent and only this package's output appears on stderr.
package ui
