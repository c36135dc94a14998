// Package metrics exposes prometheus instrumentation for the intake
// pipeline and an optional HTTP listener to scrape it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// AttachmentsStaged counts attachments accepted into the staging area.
	AttachmentsStaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitrixbot_attachments_staged_total",
		Help: "Attachments accepted into the local staging area.",
	})

	// AttachmentsRejected counts staging rejections by reason.
	AttachmentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitrixbot_attachments_rejected_total",
		Help: "Attachments rejected before staging.",
	}, []string{"reason"})

	// UploadAttempts counts individual Disk upload attempts.
	UploadAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitrixbot_upload_attempts_total",
		Help: "Bitrix Disk upload attempts, including retries.",
	})

	// Uploads counts per-file upload outcomes.
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitrixbot_uploads_total",
		Help: "Per-file Disk upload outcomes.",
	}, []string{"outcome"})

	// TasksCreated counts successfully created Bitrix tasks.
	TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitrixbot_tasks_created_total",
		Help: "Tasks created in Bitrix24.",
	})

	// TaskFailures counts confirm operations that ended without a task.
	TaskFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitrixbot_task_failures_total",
		Help: "Confirmed submissions that did not produce a task.",
	})
)

// Serve starts a /metrics listener on addr. It blocks; run it in its own
// goroutine. An empty addr disables metrics and returns immediately.
func Serve(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", zap.Error(err))
	}
}
