package channel

import (
	"context"
	"fmt"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/payment"
)

// ProposeAndSend implements processor.Submitter: build a Request for cmd
// at the next local sequence and transmit it to the peer (spec §4.1,
// §4.3 "Proposing locally").
//
// Only the server assigns command_seq and sequences the command into its
// own executor at propose time ("Server refuses to publish a command it
// cannot sequence speculatively"). A client leaves command_seq unset and
// does not touch the executor until the server's response names the slot
// — this asymmetry is the tie-breaker that keeps the shared command_seq
// space deterministic with two proposers.
func (c *Channel) ProposeAndSend(cmd *payment.Command) error {
	c.mu.Lock()

	seq := c.myNextSeq + 1
	var req Request
	if c.role == Server {
		pos, err := c.ex.SequenceNextCommand(cmd, true)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("channel: proposing command: %w", err)
		}
		req = Request{Seq: seq, CommandSeq: &pos, Command: cmd}
	} else {
		req = Request{Seq: seq, Command: cmd}
	}

	c.myRequests = append(c.myRequests, &myRequestRecord{req: req})
	c.myNextSeq = seq
	other := c.otherAddress
	c.mu.Unlock()

	if err := c.transport.SendRequest(context.Background(), other, req); err != nil {
		c.logger.Warnf("channel %s<->%s: sending request %d: %v", c.myAddress, other, seq, err)
		return fmt.Errorf("channel: sending request: %w", err)
	}
	return nil
}

// HandleRequest implements the 5-step inbound-request handling of spec
// §4.3. It sends its own response (possibly none, when the request must
// wait behind a racing own proposal) directly over the transport rather
// than returning one, so the no-response-yet case has something to not
// do.
func (c *Channel) HandleRequest(ctx context.Context, from address.Address, req Request) {
	c.mu.Lock()

	if req.Seq == 0 {
		resp := protocolErrorResponse(req.Seq, CodeMalformed)
		c.mu.Unlock()
		c.sendResponse(ctx, from, resp)
		return
	}

	idx := req.Seq - 1

	// Step 1: retransmit / conflict on an already-seen slot.
	if idx < c.otherNextSeq {
		existing := c.otherRequests[idx]
		if requestsEqual(*existing, req) {
			cached := c.otherResponses[idx]
			c.mu.Unlock()
			if cached != nil {
				c.sendResponse(ctx, from, *cached)
			}
			return
		}
		resp := protocolErrorResponse(req.Seq, CodeConflict)
		c.mu.Unlock()
		c.sendResponse(ctx, from, resp)
		return
	}

	// Step 2: a client must never assign command_seq.
	if c.role == Server && req.CommandSeq != nil {
		resp := protocolErrorResponse(req.Seq, CodeMalformed)
		c.mu.Unlock()
		c.sendResponse(ctx, from, resp)
		return
	}

	// Step 3: the server must drain its own in-flight proposals before
	// sequencing a client request, so it never speculates past a slot the
	// client believes it owns (spec §8 scenario 4, "server race"). Clients
	// never defer here: their own analogous race is caught by the "wait"
	// check in step 5 below, since a client that hasn't yet had its own
	// proposal confirmed also hasn't advanced its executor's next_seq.
	if c.role == Server {
		if own := c.outstandingOwnSeq(); own != 0 {
			reqCopy := req
			c.pendingRequests = append(c.pendingRequests, &reqCopy)
			c.mu.Unlock()
			c.logger.Debugf("channel %s<->%s: deferring request %d behind own outstanding %d", c.myAddress, from, req.Seq, own)
			return
		}
	}

	// Step 4: future slot.
	if idx > c.otherNextSeq {
		resp := protocolErrorResponse(req.Seq, CodeMissing)
		c.mu.Unlock()
		c.sendResponse(ctx, from, resp)
		return
	}

	// Step 5: in order.
	if c.role == Client && req.CommandSeq != nil && *req.CommandSeq > c.ex.NextSeq() {
		resp := protocolErrorResponse(req.Seq, CodeWait)
		c.mu.Unlock()
		c.sendResponse(ctx, from, resp)
		return
	}

	resp := c.sequenceAndRecord(req)
	c.mu.Unlock()
	c.sendResponse(ctx, from, resp)
}

// sequenceAndRecord runs req.Command through the executor and records
// both the request and its response in other_requests (spec §4.3 step
// 5), then drains anything that had been deferred behind it. Must be
// called with mu held.
func (c *Channel) sequenceAndRecord(req Request) Response {
	if req.CommandSeq != nil {
		if want := c.ex.NextSeq(); *req.CommandSeq != want {
			c.logger.Errorf("channel %s<->%s: peer-assigned command_seq %d does not match our next_seq %d", c.myAddress, c.otherAddress, *req.CommandSeq, want)
		}
	}

	pos, err := c.ex.SequenceNextCommand(req.Command, false)
	c.otherRequests = append(c.otherRequests, &req)
	c.otherNextSeq++

	var resp Response
	if err != nil {
		resp = commandErrorResponse(req.Seq, pos, err.Error())
		if serr := c.ex.SetFail(pos, err); serr != nil {
			c.logger.Errorf("channel %s<->%s: recording failure of sequenced command at %d: %v", c.myAddress, c.otherAddress, pos, serr)
		}
	} else {
		resp = successResponse(req.Seq, pos)
		if serr := c.ex.SetSuccess(pos); serr != nil {
			c.logger.Errorf("channel %s<->%s: confirming sequenced command at %d: %v", c.myAddress, c.otherAddress, pos, serr)
		}
	}
	c.otherResponses = append(c.otherResponses, &resp)
	c.drainPendingLocked()
	return resp
}

// drainPendingLocked processes requests that were deferred behind a now-
// resolved own proposal (spec §8 scenario 4). Must be called with mu
// held; responses are sent from a fresh goroutine since the caller still
// holds the lock.
func (c *Channel) drainPendingLocked() {
	if len(c.pendingRequests) == 0 || c.outstandingOwnSeq() != 0 {
		return
	}
	pending := c.pendingRequests
	c.pendingRequests = nil
	other := c.otherAddress
	for _, req := range pending {
		resp := c.sequenceAndRecord(*req)
		go c.sendResponse(context.Background(), other, resp)
	}
}

func (c *Channel) sendResponse(ctx context.Context, to address.Address, resp Response) {
	if err := c.transport.SendResponse(ctx, to, resp); err != nil {
		c.logger.Warnf("channel %s<->%s: sending response %d: %v", c.myAddress, to, resp.Seq, err)
	}
}
