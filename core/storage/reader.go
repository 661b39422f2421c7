package storage

import "boxer/core/header"

// Reader is the read-only view header verification and the miner need.
// The chain snapshot satisfies it.
type Reader interface {
	// HeaderByHash returns any stored header, canonical or side branch, or nil.
	HeaderByHash(hash header.Hash) *header.Header

	// HeaderByNumber returns the canonical header at number, or nil.
	HeaderByNumber(number uint64) *header.Header

	// TipHeader returns the current best header.
	TipHeader() *header.Header
}
