// Package reload watches the agents file and triggers a reload when it
// changes.
//
// The Watcher observes the file's directory rather than the file itself so
// that editors which replace files by rename are still seen. Bursts of events
// are collapsed into one call after a debounce delay.
package reload
