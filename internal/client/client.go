package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

// ErrNoSession is returned for actions sent before a successful Setup.
var ErrNoSession = errors.New("no session: call Setup first")

// Options tune the remote client. Zero values keep the strict lock-step
// behavior: every receive blocks until a reply arrives or ctx is cancelled.
type Options struct {
	SetupTimeout  time.Duration // per-attempt bound on the setup reply
	SetupRetries  int           // extra setup attempts after a timeout; needs SetupTimeout
	ActionTimeout time.Duration // bound on each action ack
}

// Client plays against a remote authoritative server. It keeps a mirror of
// the board and applies an action locally only after the server accepts it.
type Client struct {
	transport protocol.Transport
	server    net.Addr
	opts      Options
	log       *logrus.Entry

	session *game.Session
}

// New returns a client that talks to server over transport.
func New(transport protocol.Transport, server net.Addr, opts Options, log *logrus.Entry) *Client {
	return &Client{
		transport: transport,
		server:    server,
		opts:      opts,
		log:       log.WithField("server", server.String()),
	}
}

// Dial binds an ephemeral UDP port and returns a client for serverAddr.
func Dial(serverAddr string, opts Options, log *logrus.Entry) (*Client, error) {
	server, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve server %s: %w", serverAddr, err)
	}
	t, err := protocol.ListenUDP(":0")
	if err != nil {
		return nil, err
	}
	return New(t, server, opts, log), nil
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Session returns the mirrored session, or nil before Setup.
func (c *Client) Session() *game.Session {
	return c.session
}

// Board returns the mirrored board, or nil before Setup.
func (c *Client) Board() *board.Board {
	if c.session == nil {
		return nil
	}
	return c.session.Board()
}

// Setup asks the server for a new board. With a SetupTimeout and
// SetupRetries configured, timed out attempts are retried with backoff;
// otherwise it waits for the reply as long as ctx allows.
func (c *Client) Setup(ctx context.Context, cfg game.Config) (*board.Board, error) {
	payload, err := protocol.EncodeSetup(protocol.SetupFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	var b *board.Board
	attempt := func(ctx context.Context) error {
		if c.opts.SetupTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.opts.SetupTimeout)
			defer cancel()
		}

		reply, err := c.roundTrip(ctx, payload)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				c.log.WithField("timeout", c.opts.SetupTimeout).Warn("setup reply timed out")
				return retry.RetryableError(err)
			}
			return err
		}

		b, err = protocol.DecodeBoard(reply)
		return err
	}

	if c.opts.SetupTimeout > 0 && c.opts.SetupRetries > 0 {
		backoff := retry.WithMaxRetries(uint64(c.opts.SetupRetries), retry.NewExponential(50*time.Millisecond))
		err = retry.Do(ctx, backoff, attempt)
	} else {
		err = attempt(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", cfg, err)
	}

	c.session = game.FromBoard(b)
	c.session.Config.TileSize = cfg.TileSize
	c.log.WithField("board", cfg.String()).Info("board received")
	return b, nil
}

// Send delivers one action and waits for the ack. On acceptance the action is
// mirrored locally and the resulting state is returned; a refusal returns
// protocol.ErrActionRejected and leaves the mirror untouched.
func (c *Client) Send(ctx context.Context, action protocol.Action) (board.GameState, error) {
	if c.session == nil {
		return board.Menu, ErrNoSession
	}

	payload, err := protocol.EncodeAction(action)
	if err != nil {
		return c.session.State(), err
	}

	if c.opts.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ActionTimeout)
		defer cancel()
	}

	reply, err := c.roundTrip(ctx, payload)
	if err != nil {
		return c.session.State(), fmt.Errorf("send %s: %w", action, err)
	}
	ok, err := protocol.DecodeAck(reply)
	if err != nil {
		return c.session.State(), err
	}
	if !ok {
		c.log.WithField("action", action.String()).Debug("action rejected")
		return c.session.State(), fmt.Errorf("%s: %w", action, protocol.ErrActionRejected)
	}

	if err := apply(c.session, action); err != nil {
		// The server accepted a move the mirror cannot replay.
		c.log.WithError(err).WithField("action", action.String()).Warn("mirror out of sync")
	}
	return c.session.State(), nil
}

// roundTrip writes payload to the server and returns the server's next
// datagram. Datagrams from other addresses are dropped.
func (c *Client) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.transport.WriteTo(ctx, payload, c.server); err != nil {
		return nil, err
	}
	for {
		reply, from, err := c.transport.ReadFrom(ctx)
		if err != nil {
			return nil, err
		}
		if !sameAddr(from, c.server) {
			c.log.WithField("from", from.String()).Debug("dropping stray datagram")
			continue
		}
		return reply, nil
	}
}

func sameAddr(a, b net.Addr) bool {
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.Port == ub.Port && (ua.IP.Equal(ub.IP) || len(ub.IP) == 0 || ub.IP.IsUnspecified())
	}
	return a.String() == b.String()
}

// apply replays an accepted action on a session.
func apply(s *game.Session, action protocol.Action) error {
	switch action.Kind {
	case protocol.ActionReveal:
		err := s.Reveal(action.Row, action.Col)
		if errors.Is(err, board.ErrBombTriggered) {
			return nil
		}
		return err
	case protocol.ActionToggleFlag:
		return s.ToggleFlag(action.Row, action.Col)
	case protocol.ActionWon:
		if !s.ClaimWin() {
			return errors.New("win accepted but board is not cleared")
		}
		return nil
	case protocol.ActionQuit:
		s.Quit()
		return nil
	default:
		return fmt.Errorf("unknown action %v", action)
	}
}
