package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"agendei/internal/google"
	"agendei/internal/metrics"
	"agendei/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxMemoryDeadLetters = 100

// SheetsClient is the part of the Sheets mirror the worker drives.
type SheetsClient interface {
	UpsertAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status string) error
}

// SyncTask is one appointment change waiting to be mirrored.
type SyncTask struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Appointment *models.Appointment `json:"appointment"`
	Attempt     int                 `json:"attempt"`
	LastError   string              `json:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// SheetsWorker applies appointment changes to Google Sheets. Tasks go through
// Redis when a client is configured and through an in-process queue otherwise.
// Failed tasks are retried with backoff and end in a dead-letter list.
type SheetsWorker struct {
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan SyncTask
	redisQueueKey string
	delayedKey    string
	deadLetterKey string
	logger        *zerolog.Logger

	mu          sync.Mutex
	deadLetters []SyncTask
}

func NewSheetsWorker(sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}

	return &SheetsWorker{
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan SyncTask, queueSize),
		redisQueueKey: "sheets:queue",
		delayedKey:    "sheets:delayed",
		deadLetterKey: "sheets:deadletter",
		logger:        logger,
	}
}

// EnqueueTask schedules a copy of a for mirroring.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, a *models.Appointment) error {
	if taskType != models.TaskUpsert && taskType != models.TaskUpdateStatus {
		return fmt.Errorf("unknown task type: %q", taskType)
	}
	if a == nil || a.ID == 0 {
		return errors.New("appointment id is required")
	}

	snapshot := *a
	task := SyncTask{
		ID:          uuid.NewString(),
		Type:        taskType,
		Appointment: &snapshot,
		CreatedAt:   time.Now(),
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("Sheets worker: Redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return fmt.Errorf("sheets queue full, task %s dropped", task.ID)
	}
}

// Start runs the worker loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Bool("redis", w.redis != nil).Msg("Sheets worker: started")
	defer w.logger.Info().Msg("Sheets worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, &t)
			}
			continue
		}

		w.promoteDelayed(ctx)

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
		}
	}
}

// DeadLetters lists tasks that exhausted their retries.
func (w *SheetsWorker) DeadLetters(ctx context.Context) ([]SyncTask, error) {
	w.mu.Lock()
	out := make([]SyncTask, len(w.deadLetters))
	copy(out, w.deadLetters)
	w.mu.Unlock()

	if w.redis == nil {
		return out, nil
	}

	raw, err := w.redis.LRange(ctx, w.deadLetterKey, 0, -1).Result()
	if err != nil {
		return out, err
	}
	for _, item := range raw {
		var task SyncTask
		if err := json.Unmarshal([]byte(item), &task); err != nil {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (w *SheetsWorker) tryLocalQueue() (SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (SyncTask, bool) {
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("Sheets worker: Redis BRPOP error")
		w.sleep(ctx, time.Second)
		return SyncTask{}, false
	}
	if len(res) != 2 {
		return SyncTask{}, false
	}
	var task SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Sheets worker: decode redis task")
		return SyncTask{}, false
	}
	return task, true
}

// promoteDelayed moves retries whose backoff has elapsed back to the queue.
func (w *SheetsWorker) promoteDelayed(ctx context.Context) {
	due, err := w.redis.ZRangeByScore(ctx, w.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Sheets worker: read delayed tasks")
		}
		return
	}
	for _, item := range due {
		removed, err := w.redis.ZRem(ctx, w.delayedKey, item).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := w.redis.LPush(ctx, w.redisQueueKey, item).Err(); err != nil {
			w.logger.Error().Err(err).Msg("Sheets worker: requeue delayed task")
		}
	}
}

func (w *SheetsWorker) processTask(ctx context.Context, task *SyncTask) {
	if err := w.handleSheetTask(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	metrics.IncSyncTask("ok")
	w.logger.Debug().Str("task_id", task.ID).Str("type", task.Type).Int64("appointment_id", task.Appointment.ID).Msg("Sheets worker: task done")
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, task *SyncTask) error {
	a := task.Appointment
	if a == nil {
		return errors.New("appointment payload missing")
	}
	switch task.Type {
	case models.TaskUpsert:
		return w.sheets.UpsertAppointment(ctx, a)
	case models.TaskUpdateStatus:
		err := w.sheets.UpdateAppointmentStatus(ctx, a.ID, a.Status)
		if errors.Is(err, google.ErrRowNotFound) {
			return w.sheets.UpsertAppointment(ctx, a)
		}
		return err
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *SyncTask, cause error) {
	task.Attempt++
	task.LastError = cause.Error()

	if task.Attempt >= w.retryPolicy.MaxRetries {
		metrics.IncSyncTask("failed")
		w.logger.Error().Err(cause).Str("task_id", task.ID).Int("attempt", task.Attempt).Msg("Sheets worker: task failed")
		w.pushDeadLetter(ctx, *task)
		return
	}

	metrics.IncSyncTask("retry")
	delay := w.retryPolicy.NextDelay(task.Attempt)
	w.logger.Warn().Err(cause).Str("task_id", task.ID).Int("attempt", task.Attempt).Dur("delay", delay).Msg("Sheets worker: task retry scheduled")
	w.schedule(ctx, *task, delay)
}

func (w *SheetsWorker) schedule(ctx context.Context, task SyncTask, delay time.Duration) {
	if w.redis != nil {
		data, err := json.Marshal(task)
		if err == nil {
			score := float64(time.Now().Add(delay).UnixMilli())
			err = w.redis.ZAdd(ctx, w.delayedKey, redis.Z{Score: score, Member: data}).Err()
		}
		if err == nil {
			return
		}
		w.logger.Warn().Err(err).Msg("Sheets worker: Redis delay failed, retrying in memory")
	}

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		select {
		case w.queue <- task:
		default:
			w.logger.Error().Str("task_id", task.ID).Msg("Sheets worker: queue full, retry dropped")
			w.pushDeadLetter(ctx, task)
		}
	})
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task SyncTask) {
	if w.redis != nil {
		err := w.pushRedis(ctx, w.deadLetterKey, task)
		if err == nil {
			return
		}
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("Sheets worker: deadletter push")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deadLetters) >= maxMemoryDeadLetters {
		w.deadLetters = w.deadLetters[1:]
	}
	w.deadLetters = append(w.deadLetters, task)
}

func (w *SheetsWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
