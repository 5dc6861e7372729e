// Package channel implements the per-channel protocol state machine:
// request/response sequencing, client/server role assignment, and
// conflict/wait/missing handling over two interleaved proposal streams
// (spec §4.3).
//
// Grounded on settlement/channels/channel.go's PaymentChannel: a
// nonce-ordered, two-party state update protocol with balance
// conservation checks. Here the monotonic nonce becomes the pair of
// local/shared sequence counters, and "balance conservation" becomes
// "the executor accepted the command".
package channel

import (
	"encoding/gob"

	"github.com/vasp-network/offchain/executor"
)

func init() {
	gob.Register(Request{})
	gob.Register(Response{})
}

// ErrorCode enumerates the protocol-level errors spec §6/§7 defines.
type ErrorCode string

const (
	CodeConflict  ErrorCode = "conflict"
	CodeMalformed ErrorCode = "malformed"
	CodeWait      ErrorCode = "wait"
	CodeMissing   ErrorCode = "missing"
)

// Request is the request envelope (spec §6).
type Request struct {
	Seq        uint64
	CommandSeq *uint64
	Command    executor.Command
}

// ResponseError is the response envelope's error field.
type ResponseError struct {
	ProtocolError bool
	Code          string
}

// Response is the response envelope (spec §6).
type Response struct {
	Seq        uint64
	CommandSeq *uint64
	Success    bool
	Error      *ResponseError
}

func protocolErrorResponse(seq uint64, code ErrorCode) Response {
	return Response{Seq: seq, Success: false, Error: &ResponseError{ProtocolError: true, Code: string(code)}}
}

func commandErrorResponse(seq uint64, commandSeq uint64, reason string) Response {
	cs := commandSeq
	return Response{Seq: seq, CommandSeq: &cs, Success: false, Error: &ResponseError{ProtocolError: false, Code: reason}}
}

func successResponse(seq uint64, commandSeq uint64) Response {
	cs := commandSeq
	return Response{Seq: seq, CommandSeq: &cs, Success: true}
}

// requestsEqual compares two requests for the retransmit-vs-conflict
// check (spec §4.3 step 1). Commands compare by their identifying
// fields rather than deep equality of every byte, since a command is
// an interface value; same origin + same dependencies + same creates is
// sufficient to recognize "the same proposal resent".
func requestsEqual(a, b Request) bool {
	if a.Seq != b.Seq {
		return false
	}
	if (a.CommandSeq == nil) != (b.CommandSeq == nil) {
		return false
	}
	if a.CommandSeq != nil && *a.CommandSeq != *b.CommandSeq {
		return false
	}
	return sameCommand(a.Command, b.Command)
}

func sameCommand(a, b executor.Command) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !a.Origin().Equal(b.Origin()) {
		return false
	}
	ad, bd := a.Dependencies(), b.Dependencies()
	if len(ad) != len(bd) {
		return false
	}
	for i := range ad {
		if ad[i] != bd[i] {
			return false
		}
	}
	ac, bc := a.Creates(), b.Creates()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
