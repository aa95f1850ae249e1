package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SettleFunc replays one queued reward application. The production wiring
// points this at reward.Settler.Apply.
type SettleFunc func(ctx context.Context, job Job) error

// WorkerConfig configures the retry worker.
type WorkerConfig struct {
	MaxAttempts    int           // attempts before a job is dead-lettered (default 5)
	DequeueTimeout time.Duration // blocking pop timeout per iteration (default 5s)
	SettleTimeout  time.Duration // per-job execution timeout (default 30s)
}

// Worker drains the pending list, replaying each job and re-enqueueing
// failures with an incremented attempt count until MaxAttempts, after which
// the job is parked on the dead-letter list.
type Worker struct {
	queue  *Queue
	settle SettleFunc
	config WorkerConfig
	log    *logrus.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewWorker creates a reconciliation worker.
func NewWorker(queue *Queue, settle SettleFunc, config WorkerConfig, log *logrus.Logger) *Worker {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 5
	}
	if config.DequeueTimeout == 0 {
		config.DequeueTimeout = 5 * time.Second
	}
	if config.SettleTimeout == 0 {
		config.SettleTimeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		queue:  queue,
		settle: settle,
		config: config,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the processing loop in a goroutine.
func (w *Worker) Start() {
	w.log.Info("reconciliation worker started")
	go w.run()
}

// Stop signals the loop to exit and waits for it to drain the in-flight
// job.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
	w.log.Info("reconciliation worker stopped")
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
			if err := w.processNext(); err != nil {
				w.log.WithError(err).Error("reconciliation iteration failed")
				time.Sleep(time.Second)
			}
		}
	}
}

// processNext pops and replays one job. Dequeue errors are returned; job
// failures are handled by re-enqueue or dead-letter and never bubble up.
func (w *Worker) processNext() error {
	ctx := context.Background()

	job, err := w.queue.Dequeue(ctx, w.config.DequeueTimeout)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	settleCtx, cancel := context.WithTimeout(ctx, w.config.SettleTimeout)
	defer cancel()

	if err := w.settle(settleCtx, *job); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"operation": job.OperationID,
			"operator":  job.OperatorID,
			"attempt":   job.Attempt,
		}).Warn("reward replay failed")

		retry := *job
		retry.Attempt++
		if retry.Attempt > w.config.MaxAttempts {
			if parkErr := w.queue.Park(ctx, retry); parkErr != nil {
				w.log.WithError(parkErr).Error("failed to dead-letter job")
			} else {
				w.log.WithFields(logrus.Fields{
					"operation": job.OperationID,
					"operator":  job.OperatorID,
				}).Error("reward moved to dead-letter list for manual reconciliation")
			}
			return nil
		}
		if enqErr := w.queue.Enqueue(ctx, retry); enqErr != nil {
			w.log.WithError(enqErr).Error("failed to re-enqueue job")
		}
		return nil
	}

	w.log.WithFields(logrus.Fields{
		"operation": job.OperationID,
		"operator":  job.OperatorID,
		"attempt":   job.Attempt,
	}).Info("reward reconciled")
	return nil
}
