// Package bitcask implements an embeddable, persistent key/value store
// modeled on the Bitcask design: an append-only log of datafiles on disk,
// plus an in-memory index (the keydir) mapping each key to the location of
// its most recent value. Writes are O(1) appends; reads are a keydir
// lookup followed by a single positioned read. The store is safe for
// concurrent access from multiple goroutines.
//
// A Store takes an exclusive lock on its directory from Open until Close,
// so only one Store may have a given directory open at a time.
package bitcask
