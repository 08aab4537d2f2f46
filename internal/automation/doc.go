// Package automation evaluates event triggers. A trigger selects events by
// resource attributes (match, with * wildcards) and event names (expect),
// then fires reactively when threshold events arrive within the window, or
// proactively when a tracked resource goes quiet for longer than the window.
// Firings run actions: declaring an incident or sending a notification.
package automation
