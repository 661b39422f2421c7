// Package validator checks candidate headers against a chain snapshot and the
// consensus parameters before their blocks reach the chain service.
package validator

import (
	"errors"
	"fmt"
	"time"

	"boxer/core"
	"boxer/core/config"
	"boxer/core/header"
	"boxer/core/storage"
)

var (
	ErrUnknownParent = errors.New("parent header not found")
	ErrNumber        = errors.New("block number does not follow parent")
	ErrVersion       = errors.New("unexpected block version")
	ErrTarget        = errors.New("unexpected target")
	ErrTimestamp     = errors.New("invalid timestamp")
	ErrProofOfWork   = errors.New("insufficient proof of work")
)

// HeaderResolver pairs a header with its parent as seen by one snapshot.
type HeaderResolver struct {
	header *header.Header
	parent *header.Header
}

// NewHeaderResolver looks up the parent of hdr in snapshot. The parent is nil
// when the snapshot does not know it.
func NewHeaderResolver(hdr *header.Header, snapshot storage.Reader) *HeaderResolver {
	return &HeaderResolver{header: hdr, parent: snapshot.HeaderByHash(hdr.ParentHash)}
}

// Header returns the header being verified.
func (r *HeaderResolver) Header() *header.Header { return r.header }

// Parent returns the resolved parent, or nil.
func (r *HeaderResolver) Parent() *header.Header { return r.parent }

// HeaderVerifier applies the consensus header rules.
type HeaderVerifier struct {
	snapshot  storage.Reader
	consensus *config.Consensus
	now       func() time.Time
}

// NewHeaderVerifier returns a verifier bound to one snapshot.
func NewHeaderVerifier(snapshot storage.Reader, consensus *config.Consensus) *HeaderVerifier {
	return &HeaderVerifier{snapshot: snapshot, consensus: consensus, now: time.Now}
}

// Verify checks parent linkage, number, version, target, timestamp and proof
// of work, stopping at the first violation.
func (v *HeaderVerifier) Verify(r *HeaderResolver) error {
	hdr, parent := r.Header(), r.Parent()
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrUnknownParent, hdr.ParentHash)
	}
	if hdr.Number != parent.Number+1 {
		return fmt.Errorf("%w: number %d, parent %d", ErrNumber, hdr.Number, parent.Number)
	}
	if hdr.Version != v.consensus.BlockVersion {
		return fmt.Errorf("%w: %d, want %d", ErrVersion, hdr.Version, v.consensus.BlockVersion)
	}

	want, err := core.NextTarget(v.snapshot, parent, v.consensus)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTarget, err)
	}
	if got := hdr.TargetInt(); got.Cmp(want) != 0 {
		return fmt.Errorf("%w: %x, want %x", ErrTarget, got, want)
	}

	if hdr.Timestamp <= parent.Timestamp {
		return fmt.Errorf("%w: %d not after parent %d", ErrTimestamp, hdr.Timestamp, parent.Timestamp)
	}
	limit := v.now().Add(v.consensus.MaxFutureDrift).UnixMilli()
	if limit > 0 && hdr.Timestamp > uint64(limit) {
		return fmt.Errorf("%w: %d is too far in the future", ErrTimestamp, hdr.Timestamp)
	}

	if !hdr.CheckProofOfWork() {
		return fmt.Errorf("%w: hash %s above target", ErrProofOfWork, hdr.Hash())
	}
	return nil
}

// ChainVerifier adapts HeaderVerifier to the chain service.
type ChainVerifier struct {
	consensus *config.Consensus
}

// NewChainVerifier returns the verifier the chain service re-runs on every
// block it stores.
func NewChainVerifier(consensus *config.Consensus) *ChainVerifier {
	return &ChainVerifier{consensus: consensus}
}

// VerifyHeader implements core.HeaderVerifier.
func (c *ChainVerifier) VerifyHeader(snapshot storage.Reader, hdr *header.Header) error {
	return NewHeaderVerifier(snapshot, c.consensus).Verify(NewHeaderResolver(hdr, snapshot))
}
