package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pennytrack/apperrors"
	"pennytrack/logger"
	"pennytrack/models"
	"pennytrack/scheduler"
	"pennytrack/scraper"

	"github.com/gorilla/mux"
)

const serviceName = "pennytrack"

type Handlers struct {
	tracker     *scheduler.Tracker
	taskManager *scheduler.TaskManager
	started     time.Time
	log         *logger.Logger
}

func NewHandlers(tracker *scheduler.Tracker, taskManager *scheduler.TaskManager) *Handlers {
	return &Handlers{
		tracker:     tracker,
		taskManager: taskManager,
		started:     time.Now(),
		log:         logger.ForHTTP(),
	}
}

// HealthCheck reports liveness; it never touches the store or browser
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   serviceName,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// GetStatus returns the outcome of the most recent sync
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	failed := h.tracker.LastFailures()
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sync":      h.tracker.LastResult(),
		"pending_retry":  failed,
		"policy_version": h.tracker.Classifier().PolicyVersion(),
		"timestamp":      time.Now(),
	})
}

// ListItems returns every tracked SKU with its current classification
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.tracker.ListItems(r.Context())
	if err != nil {
		h.writeAppError(w, err, "Failed to list tracked items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AddItem tracks a SKU explicitly
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req models.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, added, err := h.tracker.AddItem(r.Context(), req)
	if err != nil {
		h.writeAppError(w, err, "Failed to add item")
		return
	}

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"item":  item,
		"added": added,
	})
}

// RemoveItem stops tracking a SKU; its history is kept
func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	if err := h.tracker.RemoveItem(r.Context(), sku); err != nil {
		h.writeAppError(w, err, "Failed to remove item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed", "sku": sku})
}

// GetPriceHistory returns a SKU's observations and change statistics
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	history, err := h.tracker.History(r.Context(), sku)
	if err != nil {
		h.writeAppError(w, err, "Failed to get price history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// CheckPriceNowAsync queues a price check for one SKU and returns the task
func (h *Handlers) CheckPriceNowAsync(w http.ResponseWriter, r *http.Request) {
	sku := strings.TrimSpace(mux.Vars(r)["sku"])
	task := h.taskManager.SubmitTask(models.TaskKindCheck, sku, func(ctx context.Context) (interface{}, error) {
		return h.tracker.CheckOne(ctx, sku)
	})
	h.log.Info().Str("sku", sku).Str("task", task.ID).Msg("Price check queued")
	writeTaskAccepted(w, task, "Price check queued for processing")
}

// Classify scores a price against the markdown policy without fetching anything
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("price")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "price is required")
		return
	}
	price, err := scraper.ParsePrice(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price: "+raw)
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.Classifier().Classify(price))
}

type syncRequest struct {
	SKUs []string `json:"skus"`
}

// StartSync queues a price sync of every tracked SKU, or of the listed ones
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	skus := req.SKUs
	task := h.taskManager.SubmitTask(models.TaskKindSync, strings.Join(skus, ","), func(ctx context.Context) (interface{}, error) {
		if len(skus) > 0 {
			return h.tracker.SyncSKUs(ctx, skus)
		}
		return h.tracker.SyncAll(ctx)
	})
	writeTaskAccepted(w, task, "Price sync queued for processing")
}

// StartDiscovery queues a clearance discovery pass
func (h *Handlers) StartDiscovery(w http.ResponseWriter, r *http.Request) {
	task := h.taskManager.SubmitTask(models.TaskKindDiscover, "", func(ctx context.Context) (interface{}, error) {
		return h.tracker.DiscoverAndTrack(ctx)
	})
	writeTaskAccepted(w, task, "Discovery queued for processing")
}

// GetTaskStatus returns the status of an async task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]

	task, exists := h.taskManager.GetTask(taskID)
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// GetTaskStats returns statistics about the task manager
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     h.taskManager.GetStats(),
		"timestamp": time.Now(),
	})
}

// statusFor maps an error kind onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrBlocked):
		return http.StatusServiceUnavailable
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindMalformedPrice:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindNavigation:
		return http.StatusBadGateway
	case apperrors.KindConfiguration:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError keeps server-side detail such as URLs and paths in the log
func (h *Handlers) writeAppError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}

	h.log.Error().Err(err).Int("status", status).Msg(fallback)
	switch status {
	case http.StatusServiceUnavailable:
		writeError(w, status, "Retailer blocked the request, try again later")
	case http.StatusBadGateway:
		writeError(w, status, "Failed to load the product page")
	default:
		writeError(w, status, fallback)
	}
}

func writeTaskAccepted(w http.ResponseWriter, task models.Task, message string) {
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": task.ID,
		"kind":    task.Kind,
		"status":  task.Status,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
