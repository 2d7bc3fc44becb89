// Package audit maintains the tamper-evident commitment chain: every
// lifecycle transition is hashed with a fresh nonce and published to a
// public append-only topic, while the full entry (including the nonce and
// the upstream references) stays in the private audit store.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/client/loghub"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/store"
)

// TopicLog is the slice of the public log the audit chain needs. The loghub
// client implements it; tests substitute a mock.
type TopicLog interface {
	CreateTopic(ctx context.Context, memo string) (string, error)
	Submit(ctx context.Context, topicID string, msg loghub.Message) (uint64, error)
}

// Entry is one commitment as recorded in the private audit store. The public
// log only ever sees CommitmentHash, Stage, and Timestamp.
type Entry struct {
	ID             uuid.UUID     `json:"id"`
	ScopeID        string        `json:"scope_id"`
	Stage          string        `json:"stage"`
	UpstreamRef1   string        `json:"upstream_ref1"`
	UpstreamRef2   string        `json:"upstream_ref2"`
	Timestamp      string        `json:"timestamp"`
	Nonce          hexutil.Bytes `json:"nonce"`
	CommitmentHash common.Hash   `json:"commitment_hash"`
	Sequence       uint64        `json:"sequence"`
	TopicID        string        `json:"topic_id,omitempty"`

	// Local marks entries that fell back to a synthetic sequence number
	// because the public log was unreachable at publication time.
	Local bool `json:"local"`
}

// Service publishes commitments and verifies stored entries
type Service struct {
	log     TopicLog
	entries store.Store[string, []*Entry]
	topics  store.Store[string, string]
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService creates the audit chain. log may be nil, in which case every
// entry is locally sequenced.
func NewService(log TopicLog) *Service {
	return &Service{
		log:     log,
		entries: store.NewMemoryStore[string, []*Entry](),
		topics:  store.NewMemoryStore[string, string](),
		clock:   time.Now,
		logger:  logger.Log,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Publish hashes the transition and appends it to the scope's topic. The
// private store is written first and is the source of truth; a publication
// failure downgrades the entry to a locally sequenced one and never fails
// the caller's flow.
func (s *Service) Publish(ctx context.Context, scopeID, stage, upstreamRef1, upstreamRef2 string) (*Entry, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	timestamp := s.clock().UTC().Format(time.RFC3339Nano)

	entry := &Entry{
		ID:             uuid.New(),
		ScopeID:        scopeID,
		Stage:          stage,
		UpstreamRef1:   upstreamRef1,
		UpstreamRef2:   upstreamRef2,
		Timestamp:      timestamp,
		Nonce:          nonce,
		CommitmentHash: Digest(scopeID, stage, upstreamRef1, upstreamRef2, timestamp, nonce),
		Local:          true,
	}

	// Phase one: persist locally with a synthetic sequence.
	_ = s.entries.Mutate(scopeID, func(existing []*Entry, ok bool) ([]*Entry, error) {
		entry.Sequence = uint64(len(existing)) + 1
		return append(existing, entry), nil
	})

	// Phase two: best-effort publication.
	if s.log != nil {
		published, err := s.publish(ctx, entry)
		if err != nil {
			s.logger.Warn("Commitment publication failed, keeping local sequence",
				zap.String("scope", scopeID),
				zap.String("stage", stage),
				zap.Error(err),
			)
		} else {
			entry = published
		}
	}

	s.logger.Info("Audit commitment recorded",
		zap.String("scope", scopeID),
		zap.String("stage", stage),
		zap.String("commitment", entry.CommitmentHash.Hex()),
		zap.Uint64("sequence", entry.Sequence),
		zap.Bool("local", entry.Local),
	)
	return entry, nil
}

func (s *Service) publish(ctx context.Context, entry *Entry) (*Entry, error) {
	topicID, err := s.topicFor(ctx, entry.ScopeID)
	if err != nil {
		return nil, err
	}

	sequence, err := s.log.Submit(ctx, topicID, loghub.Message{
		CommitmentHash: entry.CommitmentHash.Hex(),
		Stage:          entry.Stage,
		Timestamp:      entry.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	// Stored entries are never mutated in place: Log hands out their
	// pointers outside the store lock, so the published entry replaces its
	// slice element instead.
	updated := *entry
	updated.Sequence = sequence
	updated.TopicID = topicID
	updated.Local = false
	err = s.entries.Mutate(entry.ScopeID, func(existing []*Entry, ok bool) ([]*Entry, error) {
		next := make([]*Entry, len(existing))
		copy(next, existing)
		for i, e := range next {
			if e.ID == entry.ID {
				next[i] = &updated
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// topicFor returns the scope's topic, lazily creating it on first use. The
// topic memo is the scope hash, not the scope id, so the public log learns
// nothing about the auction.
func (s *Service) topicFor(ctx context.Context, scopeID string) (string, error) {
	if topicID, ok := s.topics.Get(scopeID); ok {
		return topicID, nil
	}
	topicID, err := s.log.CreateTopic(ctx, crypto.Keccak256Hash([]byte(scopeID)).Hex())
	if err != nil {
		return "", fmt.Errorf("failed to create topic: %w", err)
	}
	s.topics.Put(scopeID, topicID)
	return topicID, nil
}

// Log returns the recorded entries for a scope in publication order
func (s *Service) Log(scopeID string) []Entry {
	stored, _ := s.entries.Get(scopeID)
	out := make([]Entry, 0, len(stored))
	for _, e := range stored {
		out = append(out, *e)
	}
	return out
}

// Verify recomputes the commitment hash from the entry's stored fields and
// compares it with the stored hash. A mismatch means the private record was
// tampered with after publication; tampering of the published hash itself
// can only be detected against the public log's read API.
func (s *Service) Verify(entry *Entry) bool {
	if entry == nil {
		return false
	}
	recomputed := Digest(entry.ScopeID, entry.Stage, entry.UpstreamRef1, entry.UpstreamRef2, entry.Timestamp, entry.Nonce)
	return recomputed == entry.CommitmentHash
}

// Digest computes the one-way commitment hash. Every variable-length field
// is length-prefixed so adjacent fields cannot be smeared into each other.
func Digest(scopeID, stage, upstreamRef1, upstreamRef2, timestamp string, nonce []byte) common.Hash {
	packed := make([]byte, 0, 64)
	for _, field := range []string{scopeID, stage, upstreamRef1, upstreamRef2, timestamp} {
		var size [2]byte
		binary.BigEndian.PutUint16(size[:], uint16(len(field)))
		packed = append(packed, size[:]...)
		packed = append(packed, field...)
	}
	packed = append(packed, nonce...)
	return crypto.Keccak256Hash(packed)
}
