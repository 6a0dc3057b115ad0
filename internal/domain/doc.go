// Package domain holds the core types of the realtime-update subsystem:
// the inbound event envelope, connection state, cache group names, and
// the finance models shared by the store, cache, and API client.
package domain
