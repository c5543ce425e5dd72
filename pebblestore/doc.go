// Package pebblestore provides an embedded softtx.Store on top of Pebble.
//
// Layout:
//
//	/log/{id}                                   msgpack encoded log
//	/idx/created/{8B millis}{8B seq}{id}        empty value, ordered by creation
//
// The eligibility scan walks the creation index up to the cutoff and reads each
// record by id. Point mutations on one id are serialized by striped mutexes;
// every write is a synced batch.
package pebblestore
