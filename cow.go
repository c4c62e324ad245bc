// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package krnl

// CopyOnWrite holds either an owned buffer or a borrowed slice, becoming
// mutable-owned on first write.
type CopyOnWrite[T Numeric] struct {
	owned    *Buffer[T]
	borrowed Slice[T]
	isOwned  bool
}

// NewCopyOnWriteOwned wraps an already-owned buffer; AsSliceMut and
// IntoBuffer never need to clone it.
func NewCopyOnWriteOwned[T Numeric](owned *Buffer[T]) CopyOnWrite[T] {
	return CopyOnWrite[T]{owned: owned, isOwned: true}
}

// NewCopyOnWriteBorrowed wraps a borrowed slice; the first mutable access
// clones its contents into a fresh owned buffer.
func NewCopyOnWriteBorrowed[T Numeric](borrowed Slice[T]) CopyOnWrite[T] {
	return CopyOnWrite[T]{borrowed: borrowed, isOwned: false}
}

// AsSlice borrows the current contents immutably without triggering a
// clone, regardless of ownership state.
func (c *CopyOnWrite[T]) AsSlice() Slice[T] {
	if c.isOwned {
		return c.owned.AsSlice()
	}
	return c.borrowed
}

// AsSliceMut clones the borrowed range into a freshly owned buffer on
// first use, then returns a mutable view over it; subsequent calls reuse
// the same owned buffer without cloning again.
func (c *CopyOnWrite[T]) AsSliceMut() (SliceMut[T], error) {
	if err := c.ensureOwned(); err != nil {
		return SliceMut[T]{}, err
	}
	return c.owned.AsSliceMut(), nil
}

// IntoBuffer extracts the owned buffer, cloning first if the value is
// still borrowed.
func (c *CopyOnWrite[T]) IntoBuffer() (*Buffer[T], error) {
	if err := c.ensureOwned(); err != nil {
		return nil, err
	}
	return c.owned, nil
}

func (c *CopyOnWrite[T]) ensureOwned() error {
	if c.isOwned {
		return nil
	}
	clone, err := cloneRaw[T](c.borrowed.rawBuffer())
	if err != nil {
		return err
	}
	c.owned = clone
	c.isOwned = true
	return nil
}
