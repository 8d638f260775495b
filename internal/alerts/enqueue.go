package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Enqueuer is the trade.Notifier used in production. Each recipient of an
// event gets its own asynq task, so a retry never repeats a delivery that
// already succeeded.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

func (e *Enqueuer) Notify(ctx context.Context, ev trade.Event) error {
	tasks, err := newTradeEventTasks(ev)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if _, err := e.client.EnqueueContext(ctx, task,
			asynq.Queue(QueueNotifications),
			asynq.MaxRetry(5),
			asynq.Timeout(30*time.Second),
		); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// newTradeEventTasks splits ev into one task per recipient.
func newTradeEventTasks(ev trade.Event) ([]*asynq.Task, error) {
	users := recipients(ev)
	tasks := make([]*asynq.Task, 0, len(users))
	for _, userID := range users {
		single := ev
		single.Recipients = []string{userID}
		task, err := newTradeEventTask(single)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func newTradeEventTask(ev trade.Event) (*asynq.Task, error) {
	b, err := json.Marshal(TradeEventPayload{Event: ev, SentAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode trade event: %w", err)
	}
	return asynq.NewTask(TaskTradeEvent, b), nil
}

// Direct delivers events synchronously. It is used when the queue is
// disabled and in tests.
type Direct struct {
	store  Store
	pusher Pusher
}

func NewDirect(store Store, pusher Pusher) *Direct {
	return &Direct{store: store, pusher: pusher}
}

func (d *Direct) Notify(ctx context.Context, ev trade.Event) error {
	_, err := deliver(ctx, d.store, d.pusher, ev)
	return err
}
