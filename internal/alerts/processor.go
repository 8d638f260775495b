package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Pusher forwards a notification to connected clients. The messaging hub
// implements it.
type Pusher interface {
	Push(userID string, kind string, v any)
}

// Worker consumes trade event tasks and writes in-app notifications.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	store  Store
	pusher Pusher
}

func NewWorker(opt asynq.RedisConnOpt, store Store, pusher Pusher) *Worker {
	w := &Worker{
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				QueueNotifications: 10,
			},
			Logger: asynqLogger{},
		}),
		mux:    asynq.NewServeMux(),
		store:  store,
		pusher: pusher,
	}
	w.mux.HandleFunc(TaskTradeEvent, w.handleTradeEvent)
	return w
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq worker: %w", err)
	}
	log.Info().Msg("asynq worker started")
	return nil
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleTradeEvent(ctx context.Context, t *asynq.Task) error {
	var p TradeEventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// A malformed payload will never succeed.
		return fmt.Errorf("decode trade event: %v: %w", err, asynq.SkipRetry)
	}
	if delivered, err := deliver(ctx, w.store, w.pusher, p.Event); err != nil {
		log.Error().Err(err).Str("event", string(p.Event.Type)).Str("request_id", p.Event.RequestID).Int("delivered", delivered).Msg("notification delivery failed")
		if delivered > 0 {
			// Retrying would duplicate the notifications already written.
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	log.Debug().Str("event", string(p.Event.Type)).Int("recipients", len(p.Event.Recipients)).Msg("notification delivered")
	return nil
}

// recipients returns the distinct recipients of ev other than the actor.
func recipients(ev trade.Event) []string {
	seen := make(map[string]bool, len(ev.Recipients))
	var out []string
	for _, userID := range ev.Recipients {
		if userID == "" || userID == ev.ActorID || seen[userID] {
			continue
		}
		seen[userID] = true
		out = append(out, userID)
	}
	return out
}

// deliver writes one notification per recipient and reports how many were
// written.
func deliver(ctx context.Context, store Store, pusher Pusher, ev trade.Event) (int, error) {
	var errs []error
	delivered := 0
	for _, userID := range recipients(ev) {
		n := Notification{
			UserID:    userID,
			Type:      string(ev.Type),
			Title:     ev.Title,
			Body:      ev.Body,
			Reference: ev.RequestID,
		}
		if err := store.Create(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
			continue
		}
		delivered++
		if pusher != nil {
			pusher.Push(userID, "notification", n)
		}
	}
	return delivered, errors.Join(errs...)
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func asynqEvent(level zerolog.Level) *zerolog.Event {
	return log.WithLevel(level).Str("component", "asynq")
}

func (asynqLogger) Debug(args ...interface{}) {
	asynqEvent(zerolog.DebugLevel).Msg(fmt.Sprint(args...))
}

func (asynqLogger) Info(args ...interface{}) {
	asynqEvent(zerolog.InfoLevel).Msg(fmt.Sprint(args...))
}

func (asynqLogger) Warn(args ...interface{}) {
	asynqEvent(zerolog.WarnLevel).Msg(fmt.Sprint(args...))
}

func (asynqLogger) Error(args ...interface{}) {
	asynqEvent(zerolog.ErrorLevel).Msg(fmt.Sprint(args...))
}

// Fatal exits, as asynq expects.
func (asynqLogger) Fatal(args ...interface{}) {
	log.Fatal().Str("component", "asynq").Msg(fmt.Sprint(args...))
}
