// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package track records which state a device buffer was last used in so the
// engine can decide whether a submission needs a pipeline/memory barrier
// before it is allowed to observe a prior submission's effects.
package track

import "github.com/gogpu/krnl/internal/enginehal"

// Uses is the compute-only usage state of a buffer, more granular than
// enginehal.BufferUsage because read/write on the same usage kind still
// needs a barrier while read/read never does.
type Uses uint32

const (
	UsesNone         Uses = 0
	UsesCopySrc      Uses = 1 << 0 // read by a device-to-device or download copy
	UsesCopyDst      Uses = 1 << 1 // written by an upload or device-to-device copy
	UsesStorageRead  Uses = 1 << 2 // bound to a kernel as a read-only slice
	UsesStorageWrite Uses = 1 << 3 // bound to a kernel as a mutable slice
	UsesMapRead      Uses = 1 << 4 // mapped for a host download
	UsesMapWrite     Uses = 1 << 5 // mapped for a host upload
)

// IsReadOnly reports whether u contains no write usage.
func (u Uses) IsReadOnly() bool {
	const writeUsages = UsesCopyDst | UsesStorageWrite | UsesMapWrite
	return u&writeUsages == 0
}

func (u Uses) IsEmpty() bool { return u == UsesNone }

func (u Uses) Contains(other Uses) bool { return u&other == other }

// IsCompatible reports whether two usages may coexist without a barrier
// between them: any two read-only usages, or identical usages.
func (u Uses) IsCompatible(other Uses) bool {
	if u.IsEmpty() || other.IsEmpty() {
		return true
	}
	if u.IsReadOnly() && other.IsReadOnly() {
		return true
	}
	return u == other
}

// ToBufferUsage maps the tracked state to the creation-time usage flags the
// backend needs to pick a compatible memory type.
func (u Uses) ToBufferUsage() enginehal.BufferUsage {
	var result enginehal.BufferUsage
	if u&UsesCopySrc != 0 {
		result |= enginehal.BufferUsageTransferSrc
	}
	if u&UsesCopyDst != 0 {
		result |= enginehal.BufferUsageTransferDst
	}
	if u&(UsesStorageRead|UsesStorageWrite) != 0 {
		result |= enginehal.BufferUsageStorage
	}
	if u&(UsesMapRead|UsesMapWrite) != 0 {
		result |= enginehal.BufferUsageHostVisible
	}
	return result
}

// Transition is a from -> to usage change for one buffer.
type Transition struct {
	From Uses
	To   Uses
}

// NeedsBarrier reports whether moving from t.From to t.To requires the
// engine to insert a barrier before the next submission touching the
// buffer.
func (t Transition) NeedsBarrier() bool {
	if t.From == t.To {
		return false
	}
	if t.From.IsReadOnly() && t.To.IsReadOnly() {
		return false
	}
	return true
}

// Tracker records the last-known usage of each device buffer the engine has
// allocated, keyed by an opaque index the engine assigns at allocation time.
// Guarded externally by the engine's own lock -- Tracker itself is not
// concurrency-safe, matching the single-writer access pattern of the
// engine's submission path.
type Tracker struct {
	uses map[uint64]Uses
}

// NewTracker creates an empty buffer usage tracker.
func NewTracker() *Tracker {
	return &Tracker{uses: make(map[uint64]Uses)}
}

// Use records a new usage for bufferID, returning the transition from its
// previously recorded usage (UsesNone if this is the first use).
func (t *Tracker) Use(bufferID uint64, usage Uses) Transition {
	prev := t.uses[bufferID]
	t.uses[bufferID] = usage
	return Transition{From: prev, To: usage}
}

// Forget drops tracking state for a buffer that has been freed.
func (t *Tracker) Forget(bufferID uint64) {
	delete(t.uses, bufferID)
}
