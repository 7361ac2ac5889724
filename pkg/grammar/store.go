/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store.go
Description: Versioned grammar store for the Akaylee Parser. Keeps an append-only, linear
chain of immutable snapshots. Proposals are validated and published atomically as new
versions; rollback publishes a copy of an earlier version instead of rewriting history.
*/

package grammar

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnknownVersion is returned for versions that were never published
var ErrUnknownVersion = errors.New("unknown grammar version")

// VersionInfo summarises one entry of the version chain
type VersionInfo struct {
	Version   Version   `json:"version"`
	Parent    Version   `json:"parent"`
	Note      string    `json:"note"`
	Rules     int       `json:"rules"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds the version chain. It is safe for concurrent use; readers never
// block on validation because candidates are built outside the lock.
type Store struct {
	mu       sync.RWMutex
	versions []*Snapshot
	nextSeq  uint64
	logger   logrus.FieldLogger
}

// NewStore validates def and publishes it as version 0
func NewStore(def Definition, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}
	rules := make([]Rule, len(def.Rules))
	for i, r := range def.Rules {
		r.seq = uint64(i + 1)
		rules[i] = r
	}
	snap := newSnapshot(def.Start, def.Terminals, rules)
	snap.note = "initial"

	s := &Store{
		versions: []*Snapshot{snap},
		nextSeq:  uint64(len(rules) + 1),
		logger:   logger,
	}
	logger.WithFields(logrus.Fields{
		"version": 0,
		"rules":   len(rules),
		"digest":  snap.digest[:12],
	}).Info("Grammar store initialised")
	return s, nil
}

// Get returns the snapshot published as version v
func (s *Store) Get(v Version) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if uint64(v) >= uint64(len(s.versions)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	return s.versions[v], nil
}

// Latest returns the newest snapshot
func (s *Store) Latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[len(s.versions)-1]
}

// Len returns the number of published versions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions)
}

// Propose validates p against parent and publishes it as a new version.
// A stale parent is rebased onto the latest version so history stays linear.
// If the latest version already holds an identical definition its version is returned.
func (s *Store) Propose(parent Version, p Proposal) (Version, error) {
	return s.publish(parent, p, false)
}

// Replace publishes a version in which p.Rule is the only definition of its name
func (s *Store) Replace(parent Version, p Proposal) (Version, error) {
	return s.publish(parent, p, true)
}

func (s *Store) publish(parent Version, p Proposal, replace bool) (Version, error) {
	if _, err := s.Get(parent); err != nil {
		return 0, err
	}

	for {
		base := s.Latest()
		if base.version != parent {
			s.logger.WithFields(logrus.Fields{
				"parent": parent,
				"latest": base.version,
				"rule":   p.Rule.Name,
			}).Debug("Rebasing proposal onto latest grammar version")
		}
		if !replace && containsDefinition(base, p.Rule) {
			return base.version, nil
		}

		s.mu.Lock()
		seq := s.nextSeq
		s.mu.Unlock()

		terms, rules, err := applyProposal(base, p, replace, seq)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"version": base.version,
				"rule":    p.Rule.Name,
				"error":   err.Error(),
			}).Warn("Grammar proposal rejected")
			return 0, err
		}

		s.mu.Lock()
		if s.versions[len(s.versions)-1] != base {
			// another writer published meanwhile; validate again against it
			s.mu.Unlock()
			continue
		}
		snap := newSnapshot(base.start, terms, rules)
		snap.version = Version(len(s.versions))
		snap.parent = base.version
		snap.note = "propose " + p.Rule.Name
		if replace {
			snap.note = "replace " + p.Rule.Name
		}
		s.versions = append(s.versions, snap)
		s.nextSeq = seq + 1
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"version":    snap.version,
			"parent":     snap.parent,
			"rule":       p.Rule.String(),
			"confidence": p.Confidence,
		}).Info("Grammar version published")
		return snap.version, nil
	}
}

// Rollback publishes a new version whose rules and terminals equal target's
func (s *Store) Rollback(target Version) (Version, error) {
	old, err := s.Get(target)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked(old), nil
}

// RollbackIfLatest rolls back to target only while expected is still the
// latest version. It reports false when another version was published since.
func (s *Store) RollbackIfLatest(expected, target Version) (Version, bool, error) {
	old, err := s.Get(target)
	if err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[len(s.versions)-1].version != expected {
		return 0, false, nil
	}
	return s.rollbackLocked(old), true, nil
}

func (s *Store) rollbackLocked(old *Snapshot) Version {
	base := s.versions[len(s.versions)-1]
	snap := newSnapshot(old.start, old.terminals, old.rules)
	snap.version = Version(len(s.versions))
	snap.parent = base.version
	snap.note = fmt.Sprintf("rollback to %d", old.version)
	s.versions = append(s.versions, snap)

	s.logger.WithFields(logrus.Fields{
		"version": snap.version,
		"target":  old.version,
	}).Info("Grammar rolled back")
	return snap.version
}

// History returns the version chain, oldest first
func (s *Store) History() []VersionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VersionInfo, len(s.versions))
	for i, snap := range s.versions {
		out[i] = VersionInfo{
			Version:   snap.version,
			Parent:    snap.parent,
			Note:      snap.note,
			Rules:     len(snap.rules),
			Digest:    snap.digest,
			CreatedAt: snap.createdAt,
		}
	}
	return out
}

func containsDefinition(s *Snapshot, r Rule) bool {
	for _, existing := range s.byName[r.Name] {
		if existing.SameDefinition(r) {
			return true
		}
	}
	return false
}
