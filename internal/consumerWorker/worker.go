package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wb-go/wbf/zlog"

	"gatecheck/internal/dto"
	"gatecheck/internal/lifecycle"
	"gatecheck/internal/rabbit"
	"gatecheck/internal/repo"
)

// Reader consumes delayed event-end sweep messages and marks attendees
// who never checked in as MISSED.
type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	engine *lifecycle.Engine
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, engine *lifecycle.Engine) *Reader {
	return &Reader{
		RMQ:    rmq,
		repo:   repo,
		engine: engine,
		done:   make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("event sweep reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.EventSweepMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal sweep message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("event_id", msg.EventID).
				Time("ends_at", msg.EndsAt).
				Msg("received event-end sweep message")

			event, err := r.repo.GetEventByID(cctx, msg.EventID)
			if err != nil {
				if errors.Is(err, repo.ErrEventNotFound) {
					// event deleted while the message was in flight
					return nil
				}
				return err
			}

			// the end time may have been pushed out after this message
			// was scheduled; the edit published a fresh message, so this
			// one is stale and gets dropped
			if event.EndsAt == nil || event.EndsAt.After(time.Now().Add(time.Minute)) {
				zlog.Logger.Info().
					Str("event_id", msg.EventID).
					Msg("sweep message is stale, skipping")
				return nil
			}

			n, err := r.engine.MarkMissed(cctx, msg.EventID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Str("event_id", msg.EventID).
					Msg("failed to mark missed attendees")
				return err
			}
			zlog.Logger.Info().
				Int("count", n).
				Str("event_id", msg.EventID).
				Msg("event-end sweep complete")
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("event sweep reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
