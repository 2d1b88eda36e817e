// Package feed streams connection state to websocket clients as JSON.
//
// Each client receives a "snapshot" message on connect and then one message
// per tracker event. Slow or broken clients are dropped after a short write
// deadline so they never hold up the engine.
package feed
