// Package handlers contains the demo route handlers shipped with the server
// binary: /hello echoes the body, /delay sleeps for the duration named by the
// Delay header, and /kv is a small key-value store backed by BadgerDB.
package handlers

const (
	// StatusOK is written for successful requests.
	StatusOK = 200

	// StatusBadRequest is written by /kv for requests it cannot interpret.
	StatusBadRequest = 400

	// StatusNotFound is written by /kv when a key does not exist.
	StatusNotFound = 404
)
