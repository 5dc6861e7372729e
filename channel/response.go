package channel

import (
	"context"
	"fmt"
	"time"
)

// ErrUnexpectedResponse is returned by HandleResponse for a response that
// doesn't correspond to any outstanding request (spec §7: treated as a
// protocol violation by the peer, not fatal to the channel).
type ErrUnexpectedResponse struct {
	Seq uint64
}

func (e *ErrUnexpectedResponse) Error() string {
	return fmt.Sprintf("channel: response for seq %d has no matching outstanding request", e.Seq)
}

// HandleResponse implements the response side of spec §4.3: idempotent
// on a seq already resolved, requires every earlier seq to already be
// resolved (responses must arrive in order, since each depends on the
// executor position assigned to the one before it), and surfaces
// protocol-level codes (wait/missing/conflict/malformed) distinctly from
// ordinary command rejection.
func (c *Channel) HandleResponse(resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resp.Seq == 0 || resp.Seq > c.myNextSeq {
		return &ErrUnexpectedResponse{Seq: resp.Seq}
	}
	idx := resp.Seq - 1
	record := c.myRequests[idx]

	if record.resp != nil {
		// Idempotent: a retransmitted response for an already-resolved
		// request is simply ignored.
		return nil
	}

	for i := uint64(0); i < idx; i++ {
		if c.myRequests[i].resp == nil {
			return fmt.Errorf("channel: response for seq %d arrived before seq %d was resolved", resp.Seq, i+1)
		}
	}

	if resp.Error != nil && resp.Error.ProtocolError {
		switch ErrorCode(resp.Error.Code) {
		case CodeWait, CodeMissing:
			// The peer isn't ready for this request yet; leave it
			// unresolved so Retransmit can resend it later.
			return nil
		case CodeConflict:
			respCopy := resp
			record.resp = &respCopy
			return fmt.Errorf("channel: peer reports conflict for seq %d", resp.Seq)
		case CodeMalformed:
			respCopy := resp
			record.resp = &respCopy
			return fmt.Errorf("channel: peer reports seq %d malformed", resp.Seq)
		}
	}

	respCopy := resp
	record.resp = &respCopy

	if resp.CommandSeq != nil {
		next := c.ex.NextSeq()
		switch {
		case *resp.CommandSeq == next:
			// This was our slot. If we proposed as client we left
			// command_seq unset and never touched the executor at send
			// time; sequence it now that the server has named the slot
			// (spec §4.3: "we did not do it at send time if we were
			// client").
			if record.req.CommandSeq == nil {
				pos, err := c.ex.SequenceNextCommand(record.req.Command, false)
				if err != nil {
					return fmt.Errorf("channel: locally sequencing own command at response for seq %d: %w", resp.Seq, err)
				}
				if pos != *resp.CommandSeq {
					c.logger.Errorf("channel %s<->%s: locally sequenced position %d does not match server-assigned command_seq %d", c.myAddress, c.otherAddress, pos, *resp.CommandSeq)
				}
			}
			if err := c.applyOutcomeLocked(*resp.CommandSeq, resp); err != nil {
				return fmt.Errorf("channel: applying response for seq %d: %w", resp.Seq, err)
			}
		case *resp.CommandSeq < next:
			// Slot was already filled locally — we were server at
			// propose time, so just apply the outcome.
			if err := c.applyOutcomeLocked(*resp.CommandSeq, resp); err != nil {
				return fmt.Errorf("channel: applying response for seq %d: %w", resp.Seq, err)
			}
		default:
			// Impossible if both peers are correct; log rather than fail
			// the channel over a peer-side consistency bug.
			c.logger.Errorf("channel %s<->%s: response for seq %d names command_seq %d beyond our next_seq %d", c.myAddress, c.otherAddress, resp.Seq, *resp.CommandSeq, next)
		}
	}

	c.drainPendingLocked()
	return nil
}

// applyOutcomeLocked applies a confirmed response's success/failure to
// the executor slot at pos. Must be called with mu held.
func (c *Channel) applyOutcomeLocked(pos uint64, resp Response) error {
	if resp.Success {
		return c.ex.SetSuccess(pos)
	}
	var cmdErr error
	if resp.Error != nil {
		cmdErr = fmt.Errorf("%s", resp.Error.Code)
	}
	return c.ex.SetFail(pos, cmdErr)
}

// WouldRetransmit reports whether Retransmit has anything to resend:
// every my_requests entry still awaiting a response.
func (c *Channel) WouldRetransmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.myRequests {
		if r.resp == nil {
			return true
		}
	}
	return false
}

// Retransmit resends every outstanding (unresponded) request, in seq
// order, over the transport (spec §7: duplicate delivery must be safe,
// which HandleRequest's retransmit-vs-conflict check guarantees).
func (c *Channel) Retransmit(ctx context.Context) error {
	c.mu.Lock()
	var pending []Request
	for _, r := range c.myRequests {
		if r.resp == nil {
			pending = append(pending, r.req)
		}
	}
	other := c.otherAddress
	c.mu.Unlock()

	for _, req := range pending {
		if err := c.transport.SendRequest(ctx, other, req); err != nil {
			return fmt.Errorf("channel: retransmitting seq %d: %w", req.Seq, err)
		}
	}
	return nil
}

// Watchdog retransmits on a fixed interval until ctx is cancelled,
// logging (but not stopping on) transport errors. Meant to be run in its
// own goroutine, one per channel.
func (c *Channel) Watchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Retransmit(ctx); err != nil {
				c.logger.Warnf("channel %s<->%s: watchdog retransmit: %v", c.myAddress, c.otherAddress, err)
			}
		}
	}
}
