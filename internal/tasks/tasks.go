package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// StartMessage triggers a run. The options travel with the trigger so a
// publisher can parameterize runs without touching the service's config.
type StartMessage struct {
	TaskID  string           `json:"task_id"`
	Options types.RunOptions `json:"options"`
}

// StopMessage revokes a running task.
type StopMessage struct {
	TaskID string `json:"task_id"`
}

// RunFunc executes one run under the given context.
type RunFunc func(ctx context.Context, taskID string, opts types.RunOptions)

// Broker connects the service to the NATS task subjects: it subscribes for
// start and stop messages and tracks the cancel function of the task in
// flight. Only one run executes at a time; a start while one is running is
// rejected with a log line, matching the singleton status row.
type Broker struct {
	conn   *nats.Conn
	cfg    config.TasksConfig
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc

	subs []*nats.Subscription
}

// NewBroker connects to NATS.
func NewBroker(cfg config.TasksConfig, run RunFunc, logger *slog.Logger) (*Broker, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("carmatch"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Broker{
		conn:   conn,
		cfg:    cfg,
		run:    run,
		logger: logger.With("component", "tasks"),
	}, nil
}

// NewLocalBroker builds a broker without a NATS connection. Used when the
// tasks boundary is disabled; only StartLocal and StopCurrent work.
func NewLocalBroker(run RunFunc, logger *slog.Logger) *Broker {
	return &Broker{run: run, logger: logger.With("component", "tasks")}
}

// Listen subscribes to the start and stop subjects. It returns immediately;
// message handling happens on NATS callbacks.
func (b *Broker) Listen() error {
	if b.conn == nil {
		return fmt.Errorf("tasks boundary disabled, no nats connection")
	}
	startSub, err := b.conn.Subscribe(b.cfg.StartSubject, b.handleStart)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.StartSubject, err)
	}
	stopSub, err := b.conn.Subscribe(b.cfg.StopSubject, b.handleStop)
	if err != nil {
		startSub.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", b.cfg.StopSubject, err)
	}
	b.subs = append(b.subs, startSub, stopSub)
	b.logger.Info("listening for tasks",
		"start_subject", b.cfg.StartSubject, "stop_subject", b.cfg.StopSubject)
	return nil
}

func (b *Broker) handleStart(msg *nats.Msg) {
	var start StartMessage
	if err := json.Unmarshal(msg.Data, &start); err != nil {
		b.logger.Error("malformed start message", "error", err)
		return
	}
	if start.TaskID == "" {
		start.TaskID = uuid.NewString()
	}

	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		b.logger.Warn("start rejected, task already running",
			"task_id", start.TaskID, "current", b.current)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.current = start.TaskID
	b.cancel = cancel
	b.mu.Unlock()

	b.logger.Info("task started", "task_id", start.TaskID)
	go func() {
		defer func() {
			b.mu.Lock()
			b.current = ""
			b.cancel = nil
			b.mu.Unlock()
		}()
		b.run(ctx, start.TaskID, start.Options)
	}()
}

func (b *Broker) handleStop(msg *nats.Msg) {
	var stop StopMessage
	if err := json.Unmarshal(msg.Data, &stop); err != nil {
		b.logger.Error("malformed stop message", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		b.logger.Warn("stop for idle service", "task_id", stop.TaskID)
		return
	}
	if stop.TaskID != "" && stop.TaskID != b.current {
		b.logger.Warn("stop for unknown task", "task_id", stop.TaskID, "current", b.current)
		return
	}
	b.logger.Info("task stopped", "task_id", b.current)
	b.cancel()
}

// Running reports the task currently in flight, empty when idle.
func (b *Broker) Running() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// StopCurrent cancels the task in flight, if any. Used by the REST stop
// endpoint so both control surfaces share one revocation path.
func (b *Broker) StopCurrent(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil || (taskID != "" && taskID != b.current) {
		return false
	}
	b.cancel()
	return true
}

// StartLocal launches a run outside NATS, used by the REST trigger and the
// CLI. It shares the single-flight discipline with NATS starts.
func (b *Broker) StartLocal(opts types.RunOptions) (string, error) {
	taskID := uuid.NewString()

	b.mu.Lock()
	if b.cancel != nil {
		current := b.current
		b.mu.Unlock()
		return "", fmt.Errorf("task %s already running", current)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.current = taskID
	b.cancel = cancel
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.current = ""
			b.cancel = nil
			b.mu.Unlock()
		}()
		b.run(ctx, taskID, opts)
	}()
	return taskID, nil
}

// Publish sends a start message, used by the CLI to trigger a remote run.
func Publish(cfg config.TasksConfig, opts types.RunOptions) (string, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("carmatch-cli"))
	if err != nil {
		return "", fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	msg := StartMessage{TaskID: uuid.NewString(), Options: opts}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	if err := conn.Publish(cfg.StartSubject, data); err != nil {
		return "", fmt.Errorf("publish start: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return "", err
	}
	return msg.TaskID, nil
}

// Close drains the subscriptions and closes the connection.
func (b *Broker) Close() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
