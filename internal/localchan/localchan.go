// Package localchan runs each worker on its own goroutine inside the
// controller process. Messages still cross the boundary as encoded frames so
// neither side can observe the other's memory.
package localchan

import (
	"context"
	"fmt"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/internal/mailbox"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/wire"
	"github.com/progcompcl/ide/internal/worker"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

const defaultInboxDepth = 16

// Factory spawns in-process workers.
type Factory struct {
	// NewToolchain returns the toolchain for a fresh worker.
	NewToolchain func() toolchain.Toolchain
	InboxDepth   int
}

// Create implements core.ChannelFactory. The worker outlives ctx
// cancellation and stops only on Terminate.
func (f *Factory) Create(ctx context.Context, gen schema.Generation) (core.Channel, error) {
	if f == nil || f.NewToolchain == nil {
		return nil, fmt.Errorf("localchan: missing toolchain constructor")
	}
	tc := f.NewToolchain()
	if tc == nil {
		return nil, fmt.Errorf("localchan: toolchain constructor returned nil")
	}
	depth := f.InboxDepth
	if depth <= 0 {
		depth = defaultInboxDepth
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Channel{
		Mailbox: mailbox.New(),
		log:     logx.WithGeneration(ctx, gen),
		toWork:  make(chan []byte, depth),
		cancel:  cancel,
	}
	inbox := make(chan schema.ControlMessage)
	w := worker.New(tc, gen, c.fromWorker)
	go c.decodeInbound(runCtx, inbox)
	go c.runWorker(logx.ContextWithWorkerLogger(runCtx, c.log, gen), w, inbox)
	c.log.Debug("localchan worker started")
	return c, nil
}

// Channel is an in-process core.Channel.
type Channel struct {
	*mailbox.Mailbox

	log    pslog.Logger
	toWork chan []byte
	cancel context.CancelFunc
}

// Send encodes msg and queues it for the worker.
func (c *Channel) Send(msg schema.ControlMessage) error {
	if c.Closed() {
		return schema.ErrChannelClosed
	}
	dat, err := wire.EncodeControl(msg)
	if err != nil {
		return err
	}
	select {
	case c.toWork <- dat:
		return nil
	case <-c.Done():
		return schema.ErrChannelClosed
	}
}

// Terminate stops the worker. It does not wait for an in-progress handler.
func (c *Channel) Terminate() {
	if !c.Close() {
		return
	}
	c.cancel()
	c.log.Debug("localchan terminated")
}

func (c *Channel) decodeInbound(ctx context.Context, inbox chan<- schema.ControlMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case dat := <-c.toWork:
			msg, err := wire.DecodeControl(dat)
			if err != nil {
				c.PushError(fmt.Errorf("decode control message: %w", err))
				continue
			}
			select {
			case inbox <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Channel) runWorker(ctx context.Context, w *worker.Worker, inbox <-chan schema.ControlMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("localchan worker crashed", "panic", fmt.Sprint(r))
			c.PushError(fmt.Errorf("worker crashed: %v", r))
		}
	}()
	w.Run(ctx, inbox)
}

// fromWorker round-trips msg through the wire codec before queueing it.
func (c *Channel) fromWorker(msg schema.WorkerMessage) {
	dat, err := wire.EncodeWorker(msg)
	if err != nil {
		c.PushError(fmt.Errorf("encode worker message: %w", err))
		return
	}
	decoded, err := wire.DecodeWorker(dat)
	if err != nil {
		c.PushError(fmt.Errorf("decode worker message: %w", err))
		return
	}
	c.PushMessage(decoded)
}
