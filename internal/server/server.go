package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/engine"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/protocol"
	"github.com/MJE43/minesweep-relay/internal/store"
)

// Options tune the server.
type Options struct {
	Seeded        bool   // build boards from a reproducible seeded source
	ServerSeed    string // only its hash is logged or stored
	MaxSessions   int    // zero means unlimited
	MaxCells      int    // rows*cols cap; zero means protocol.MaxCells
	EngineVersion string
}

type peerSession struct {
	game   *game.Session
	record *store.Session
}

// Server owns the authoritative board of every peer. Requests are processed
// one at a time by Serve; sessions are keyed by the peer's address.
type Server struct {
	transport protocol.Transport
	db        store.DB
	opts      Options
	log       *logrus.Entry

	sessions map[string]*peerSession
	nonce    uint64
	active   atomic.Int64
}

// New returns a server reading from transport. db may be nil, in which case
// nothing is recorded.
func New(transport protocol.Transport, db store.DB, opts Options, log *logrus.Entry) *Server {
	return &Server{
		transport: transport,
		db:        db,
		opts:      opts,
		log:       log,
		sessions:  make(map[string]*peerSession),
	}
}

// ActiveSessions is safe to call from other goroutines.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

// Serve runs the receive loop until ctx is cancelled. Undecodable datagrams
// are rejected and the loop keeps going.
func (s *Server) Serve(ctx context.Context) error {
	s.log.WithField("addr", s.transport.LocalAddr().String()).Info("udp server listening")

	for {
		data, addr, err := s.transport.ReadFrom(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("udp server stopping")
				return nil
			}
			if errors.Is(err, protocol.ErrTimeout) {
				s.log.WithField("active", s.ActiveSessions()).Debug("no datagram within read timeout")
				continue
			}
			return err
		}

		reply := s.Handle(addr.String(), data)
		if err := s.transport.WriteTo(ctx, reply, addr); err != nil {
			s.log.WithError(err).WithField("peer", addr.String()).Warn("reply failed")
		}
	}
}

// Handle applies one datagram from peer and returns the reply payload.
func (s *Server) Handle(peer string, data []byte) []byte {
	log := s.log.WithField("peer", peer)

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		log.WithError(err).WithField("bytes", len(data)).Warn("rejecting malformed datagram")
		if ps, ok := s.sessions[peer]; ok {
			ps.record.Rejected++
			s.persist(ps, log)
		}
		return protocol.EncodeAck(false)
	}

	if req.Setup != nil {
		return s.handleSetup(peer, *req.Setup, log)
	}
	return protocol.EncodeAck(s.handleAction(peer, *req.Action, log))
}

// checkSize refuses boards whose setup reply could never fit in a datagram,
// before any tiles are allocated.
func (s *Server) checkSize(cfg game.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	limit := s.opts.MaxCells
	if limit <= 0 {
		limit = protocol.MaxCells
	}
	if cfg.Rows > limit/cfg.Cols {
		return fmt.Errorf("%w: %dx%d exceeds %d cells", protocol.ErrBoardTooLarge, cfg.Rows, cfg.Cols, limit)
	}
	return nil
}

func (s *Server) handleSetup(peer string, setup protocol.Setup, log *logrus.Entry) []byte {
	if old, ok := s.sessions[peer]; ok {
		old.game.Quit()
		s.finish(peer, old, log)
	}
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		log.WithField("max", s.opts.MaxSessions).Warn("rejecting setup: session limit reached")
		return protocol.EncodeAck(false)
	}

	cfg := setup.Config()
	if err := s.checkSize(cfg); err != nil {
		log.WithError(err).WithField("setup", cfg.String()).Warn("rejecting setup")
		return protocol.EncodeAck(false)
	}

	var src engine.Source
	if s.opts.Seeded {
		s.nonce++
		src = engine.NewSeededSource(s.opts.ServerSeed, peer, s.nonce)
	}

	g := game.NewSession(cfg, src)
	if err := g.Start(); err != nil {
		log.WithError(err).WithField("setup", cfg.String()).Warn("rejecting setup")
		return protocol.EncodeAck(false)
	}

	payload, err := protocol.EncodeBoard(g.Board())
	if err != nil {
		log.WithError(err).Warn("rejecting setup")
		return protocol.EncodeAck(false)
	}

	ps := &peerSession{
		game: g,
		record: &store.Session{
			ID:            g.ID.String(),
			Peer:          peer,
			TileSize:      setup.TileSize,
			Rows:          setup.Rows,
			Cols:          setup.Cols,
			Bombs:         setup.Bombs,
			Seeded:        s.opts.Seeded,
			Outcome:       string(game.OutcomeInProgress),
			EngineVersion: s.opts.EngineVersion,
			CreatedAt:     g.StartedAt,
		},
	}
	if s.opts.Seeded {
		ps.record.SeedHash = store.HashSeed(s.opts.ServerSeed)
	}

	s.sessions[peer] = ps
	s.active.Store(int64(len(s.sessions)))
	if s.db != nil {
		if err := s.db.SaveSession(ps.record); err != nil {
			log.WithError(err).Error("failed to record session")
		}
	}

	log.WithFields(logrus.Fields{
		"session": ps.record.ID,
		"board":   setup.Config().String(),
		"bytes":   len(payload),
	}).Info("session started")
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.Debugf("layout\n%s", g.Board())
	}

	return payload
}

func (s *Server) handleAction(peer string, action protocol.Action, log *logrus.Entry) bool {
	log = log.WithField("action", action.String())

	ps, ok := s.sessions[peer]
	if !ok {
		if action.Kind == protocol.ActionQuit {
			return true
		}
		log.Warn("rejecting action: no session")
		return false
	}
	log = log.WithField("session", ps.record.ID)

	var err error
	switch action.Kind {
	case protocol.ActionReveal:
		err = ps.game.Reveal(action.Row, action.Col)
	case protocol.ActionToggleFlag:
		err = ps.game.ToggleFlag(action.Row, action.Col)
	case protocol.ActionWon:
		if !ps.game.ClaimWin() {
			err = errors.New("win claim does not match board")
		}
	case protocol.ActionQuit:
		ps.game.Quit()
		s.finish(peer, ps, log)
		log.Info("session quit")
		return true
	}

	accepted := err == nil || errors.Is(err, board.ErrBombTriggered)
	if !accepted {
		ps.record.Rejected++
		log.WithError(err).Info("action rejected")
	} else if err != nil {
		log.Info("bomb triggered")
	}

	ps.record.Moves = ps.game.Moves()
	ps.record.Outcome = string(ps.game.Outcome())
	if ps.game.State().Terminal() && ps.record.EndedAt == nil {
		now := time.Now()
		ps.record.EndedAt = &now
		log.WithField("outcome", ps.record.Outcome).Info("session ended")
	}
	s.persist(ps, log)

	return accepted
}

func (s *Server) finish(peer string, ps *peerSession, log *logrus.Entry) {
	ps.record.Moves = ps.game.Moves()
	ps.record.Outcome = string(ps.game.Outcome())
	if ps.record.EndedAt == nil {
		now := time.Now()
		ps.record.EndedAt = &now
	}
	s.persist(ps, log)
	delete(s.sessions, peer)
	s.active.Store(int64(len(s.sessions)))
}

func (s *Server) persist(ps *peerSession, log *logrus.Entry) {
	if s.db == nil {
		return
	}
	if err := s.db.UpdateSession(ps.record); err != nil {
		log.WithError(err).Error("failed to update session record")
	}
}
