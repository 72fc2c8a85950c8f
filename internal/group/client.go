package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"opgrid/internal/logging"
)

// Client is a follower rank connected to a Coordinator.
type Client struct {
	conn   *grpc.ClientConn
	rank   int
	size   int
	logger *slog.Logger
	seq    uint64
	gen    uint64
	closed atomic.Bool
}

// Dial connects follower rank to the coordinator at address and joins the
// group, waiting up to the join timeout for the coordinator to come up.
func Dial(ctx context.Context, address string, rank, size int, opts ...Option) (*Client, error) {
	if err := validatePlacement(rank, size); err != nil {
		return nil, err
	}
	if rank == 0 {
		return nil, errors.New("rank 0 hosts the coordinator; use Listen")
	}
	o := buildOptions(opts)

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator %s: %w", address, err)
	}

	joinCtx, cancel := context.WithTimeout(ctx, o.joinTimeout)
	defer cancel()
	var resp JoinResponse
	if err := conn.Invoke(joinCtx, methodJoin, &JoinRequest{Rank: rank, Size: size}, &resp, grpc.WaitForReady(true)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join group at %s as rank %d: %w", address, rank, err)
	}

	c := &Client{
		conn:   conn,
		rank:   rank,
		size:   size,
		logger: o.logger.With(logging.Rank(rank)),
	}
	c.logger.Debug("joined group", logging.String("coordinator", address), logging.Int("size", resp.Size))
	return c, nil
}

func (c *Client) Rank() int { return c.rank }

func (c *Client) Size() int { return c.size }

// Broadcast fetches rank 0's next payload; the local payload is ignored.
func (c *Client) Broadcast(ctx context.Context, _ []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	seq := c.seq
	c.seq++
	var resp FetchResponse
	if err := c.conn.Invoke(ctx, methodFetch, &FetchRequest{Rank: c.rank, Seq: seq}, &resp); err != nil {
		return nil, c.unreachable(err)
	}
	if err := resp.Abort.err(); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (c *Client) Barrier(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	gen := c.gen
	c.gen++
	var resp BarrierResponse
	if err := c.conn.Invoke(ctx, methodBarrier, &BarrierRequest{Rank: c.rank, Generation: gen}, &resp); err != nil {
		return c.unreachable(err)
	}
	return resp.Abort.err()
}

// Abort reports the failure to the coordinator. Delivery is best effort.
func (c *Client) Abort(cause error) {
	if c.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abortDeliveryTimeout)
	defer cancel()
	var resp AbortResponse
	if err := c.conn.Invoke(ctx, methodAbort, &AbortRequest{Rank: c.rank, Cause: causeText(cause)}, &resp); err != nil {
		c.logger.Warn("group abort not delivered", logging.Error(err))
	}
}

// Finish checks this rank out with the coordinator.
func (c *Client) Finish(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	var resp FinishResponse
	if err := c.conn.Invoke(ctx, methodFinish, &FinishRequest{Rank: c.rank}, &resp); err != nil {
		return fmt.Errorf("check out rank %d: %w", c.rank, err)
	}
	return nil
}

func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// unreachable treats a transport failure as an abort by the coordinator.
func (c *Client) unreachable(err error) error {
	return &AbortError{Rank: 0, Cause: fmt.Sprintf("coordinator unreachable: %v", err)}
}
