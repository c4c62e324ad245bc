// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package engine

import "github.com/gogpu/krnl/internal/enginehal"

// Completion is an awaitable token identifying a queue and the fence value
// a submission was tagged with. The actual wait is a poll against the
// backend's CompletedFence counter rather than a broadcast channel, which
// keeps the design free of any particular async runtime while still
// letting callers block, poll, or chain handles.
type Completion struct {
	engine     *Engine
	queue      enginehal.QueueKind
	fenceValue uint64
}

// Wait blocks until this submission's fence is signaled, or returns
// DeviceLost if the engine was poisoned first.
func (c *Completion) Wait() error {
	dev, guard, err := c.engine.device()
	if err != nil {
		return err
	}
	defer guard.Release()
	if err := dev.WaitFence(c.queue, c.fenceValue); err != nil {
		if err == enginehal.ErrDeviceLost {
			return c.engine.poison(err)
		}
		return err
	}
	return nil
}

// Done reports whether the fence has already reached this handle's value,
// without blocking.
func (c *Completion) Done() bool {
	dev, guard, err := c.engine.device()
	if err != nil {
		return false
	}
	defer guard.Release()
	return dev.CompletedFence(c.queue) >= c.fenceValue
}

// DownloadCompletion is a Completion that, once waited on, produces the
// downloaded host bytes.
type DownloadCompletion struct {
	Completion
	read func() ([]byte, error)
}

// Bytes waits for the download's fence and then returns the copied host
// bytes.
func (d *DownloadCompletion) Bytes() ([]byte, error) {
	if err := d.Wait(); err != nil {
		return nil, err
	}
	return d.read()
}
