// Package events records mouse and keyboard samples against the start of a
// recording session and persists them as a flat JSON log. Input arrives from
// a raw-mode terminal listener or a deterministic synthetic timeline used for
// non-interactive runs and automated tests.
package events
