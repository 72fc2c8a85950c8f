package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"opgrid/internal/logging"
)

// Coordinator is rank 0 of a multi-process group. It hosts the shared hub
// over gRPC and takes part in collectives directly.
type Coordinator struct {
	hub      *hub
	opts     options
	logger   *slog.Logger
	listener net.Listener
	server   *grpc.Server
	serveErr chan error
	seq      uint64
	gen      uint64
	closed   atomic.Bool
}

// Listen starts the coordinator service for a group of size ranks.
func Listen(address string, size int, opts ...Option) (*Coordinator, error) {
	if err := validatePlacement(0, size); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	c := &Coordinator{
		hub:      newHub(size),
		opts:     o,
		logger:   o.logger.With(logging.Rank(0)),
		listener: listener,
		server:   grpc.NewServer(grpc.ForceServerCodec(jsonCodec{})),
		serveErr: make(chan error, 1),
	}
	c.server.RegisterService(&coordinatorServiceDesc, &coordinatorService{hub: c.hub, logger: c.logger})

	go func() {
		c.serveErr <- c.server.Serve(listener)
	}()
	c.logger.Debug("group coordinator listening",
		logging.String("address", listener.Addr().String()),
		logging.Int("size", size),
	)
	return c, nil
}

// Addr returns the bound listen address.
func (c *Coordinator) Addr() string {
	return c.listener.Addr().String()
}

// WaitForMembers blocks until every follower joined or the join timeout
// expires.
func (c *Coordinator) WaitForMembers(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.joinTimeout)
	defer cancel()
	if err := c.hub.waitJoined(ctx); err != nil {
		return fmt.Errorf("wait for %d followers: %w", c.hub.size-1, err)
	}
	c.logger.Debug("group assembled", logging.Int("size", c.hub.size))
	return nil
}

func (c *Coordinator) Rank() int { return 0 }

func (c *Coordinator) Size() int { return c.hub.size }

func (c *Coordinator) Broadcast(_ context.Context, payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	seq := c.seq
	c.seq++
	if err := c.hub.publish(seq, payload); err != nil {
		return nil, err
	}
	return append([]byte(nil), payload...), nil
}

func (c *Coordinator) Barrier(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	gen := c.gen
	c.gen++
	return c.hub.arrive(ctx, 0, gen)
}

func (c *Coordinator) Abort(cause error) {
	effective := c.hub.abort(0, causeText(cause))
	c.logger.Debug("group abort", logging.Int("origin_rank", effective.Rank), logging.String("cause", effective.Cause))
}

// Finish waits for every follower to check out. Close the coordinator only
// after Finish so lagging followers still see the real abort cause.
func (c *Coordinator) Finish(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.hub.finish(0); err != nil {
		return err
	}
	if err := c.hub.waitFinished(ctx); err != nil {
		return fmt.Errorf("wait for group to finish: %w", err)
	}
	c.logger.Debug("group finished", logging.Int("size", c.hub.size))
	return nil
}

// Close drains in-flight calls and stops the service.
func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.opts.shutdownTimeout):
		c.server.Stop()
		<-done
	}
	if err := <-c.serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("group coordinator: %w", err)
	}
	return nil
}

type coordinatorService struct {
	hub    *hub
	logger *slog.Logger
}

func (s *coordinatorService) Join(_ context.Context, req *JoinRequest) (*JoinResponse, error) {
	if err := s.hub.join(req.Rank, req.Size); err != nil {
		s.logger.Warn("rejected group member", logging.Int("member_rank", req.Rank), logging.Error(err))
		return nil, err
	}
	s.logger.Debug("group member joined", logging.Int("member_rank", req.Rank))
	return &JoinResponse{Size: s.hub.size}, nil
}

func (s *coordinatorService) Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	payload, err := s.hub.fetch(ctx, req.Rank, req.Seq)
	if err != nil {
		return abortResponse(err, func(n *AbortNotice) *FetchResponse { return &FetchResponse{Abort: n} })
	}
	return &FetchResponse{Payload: payload}, nil
}

func (s *coordinatorService) Barrier(ctx context.Context, req *BarrierRequest) (*BarrierResponse, error) {
	if err := s.hub.arrive(ctx, req.Rank, req.Generation); err != nil {
		return abortResponse(err, func(n *AbortNotice) *BarrierResponse { return &BarrierResponse{Abort: n} })
	}
	return &BarrierResponse{}, nil
}

func (s *coordinatorService) Abort(_ context.Context, req *AbortRequest) (*AbortResponse, error) {
	effective := s.hub.abort(req.Rank, req.Cause)
	s.logger.Debug("group abort", logging.Int("origin_rank", effective.Rank), logging.String("cause", effective.Cause))
	return &AbortResponse{Abort: noticeFrom(effective)}, nil
}

func (s *coordinatorService) Finish(_ context.Context, req *FinishRequest) (*FinishResponse, error) {
	if req.Rank == 0 {
		return nil, fmt.Errorf("rank 0 finishes on the coordinator")
	}
	if err := s.hub.finish(req.Rank); err != nil {
		return nil, err
	}
	s.logger.Debug("group member finished", logging.Int("member_rank", req.Rank))
	return &FinishResponse{}, nil
}

func abortResponse[Resp any](err error, wrap func(*AbortNotice) *Resp) (*Resp, error) {
	var aborted *AbortError
	if errors.As(err, &aborted) {
		return wrap(noticeFrom(aborted)), nil
	}
	return nil, err
}
