package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"

	"github.com/vasp-network/offchain/address"
	"github.com/vasp-network/offchain/executor"
)

// log is the package-wide default logger (spec §9.1); NewChannel
// accepts a per-channel override.
var log = btclog.Disabled

// UseLogger sets the package-wide default logger.
func UseLogger(l btclog.Logger) { log = l }

// Role is the channel's deterministic client/server assignment.
type Role int

const (
	Client Role = iota
	Server
)

func (r Role) String() string {
	if r == Server {
		return "server"
	}
	return "client"
}

// DetermineRole computes the stable role assignment (spec §4.3):
//
//	bit = last_bit(my) XOR last_bit(other)
//	bit==0: I am client iff my >= other
//	bit==1: I am client iff my <  other
//
// is_client(A,B) XOR is_client(B,A) is always true (spec §8), since
// swapping my/other flips both the bit and the comparison.
func DetermineRole(my, other address.Address) Role {
	bit := my.LastBit() ^ other.LastBit()
	var iAmClient bool
	if bit == 0 {
		iAmClient = !my.Less(other)
	} else {
		iAmClient = my.Less(other)
	}
	if iAmClient {
		return Client
	}
	return Server
}

// Transport is the network capability the channel requires (spec §6):
// ordered, best-effort, peer-deduplicated delivery. The core performs
// its own deduplication on top of whatever this sends.
type Transport interface {
	SendRequest(ctx context.Context, to address.Address, req Request) error
	SendResponse(ctx context.Context, to address.Address, resp Response) error
}

// myRequestRecord is one entry of my_requests: a sent request and its
// (possibly not yet received) response.
type myRequestRecord struct {
	req  Request
	resp *Response
}

// Channel is the per-(myself,other) protocol state machine (spec §3
// "Channel state", §4.3).
type Channel struct {
	myAddress    address.Address
	otherAddress address.Address
	role         Role

	ex        *executor.Executor
	transport Transport
	logger    btclog.Logger

	mu              sync.Mutex
	myRequests      []*myRequestRecord
	otherRequests   []*Request
	otherResponses  []*Response
	pendingRequests []*Request
	myNextSeq       uint64
	otherNextSeq    uint64
}

// outstandingOwnSeq returns the seq of my own oldest request that has not
// yet been confirmed (my_requests entry with no recorded response), or 0
// if none. Used to detect the server-race window (spec §4.3 step 3 /
// §8 scenario 4): I proposed something for the next slot myself, and the
// peer raced me with their own proposal for the same slot.
func (c *Channel) outstandingOwnSeq() uint64 {
	for _, r := range c.myRequests {
		if r.resp == nil {
			return r.req.Seq
		}
	}
	return 0
}

// New builds a Channel. ex must already be wired to a Processor (it
// will typically also be wired back to this Channel via
// processor.SetSubmitter once construction completes).
func New(my, other address.Address, ex *executor.Executor, transport Transport, logger btclog.Logger) *Channel {
	if logger == nil {
		logger = log
	}
	return &Channel{
		myAddress:    my,
		otherAddress: other,
		role:         DetermineRole(my, other),
		ex:           ex,
		transport:    transport,
		logger:       logger,
	}
}

func (c *Channel) MyAddress() address.Address    { return c.myAddress }
func (c *Channel) OtherAddress() address.Address { return c.otherAddress }
func (c *Channel) Role() Role                    { return c.role }

// ConsistencyError wraps an *executor.InternalError surfaced up from the
// executor: fatal to this channel, requiring a reload from persistent
// state (spec §7).
type ConsistencyError struct {
	Err error
}

func (e *ConsistencyError) Error() string { return fmt.Sprintf("channel: internal consistency error: %v", e.Err) }
func (e *ConsistencyError) Unwrap() error { return e.Err }
