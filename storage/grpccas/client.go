package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/vaultseed/storage"
)

// Client implements storage.CAS against a record daemon.
//
// Every response is re-verified locally: a daemon cannot hand back bytes that
// do not hash to the requested CID.
type Client struct {
	cc *grpc.ClientConn

	// Timeout bounds each RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

var (
	_ storage.CAS     = (*Client)(nil)
	_ storage.Claimer = (*Client)(nil)
)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial creates a client for target. The connection is established lazily on
// the first RPC.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	expected, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := invoke[wrapperspb.StringValue](ctx, c.cc, "Put", wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := storage.ParseCID(reply.GetValue())
	if err != nil {
		return cid.Undef, err
	}
	if !id.Equals(expected) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := invoke[wrapperspb.BytesValue](ctx, c.cc, "Get", wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := storage.Verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := invoke[wrapperspb.BoolValue](ctx, c.cc, "Has", wrapperspb.String(id.String()))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

// Claim asks the daemon to store data only if it is absent. The daemon
// decides, so two operators claiming the same record through one daemon
// cannot both win.
func (c *Client) Claim(ctx context.Context, data []byte) (cid.Cid, bool, error) {
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, false, err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := invoke[wrapperspb.BoolValue](ctx, c.cc, "Claim", wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, false, mapRPC(err)
	}
	return id, reply.GetValue(), nil
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
