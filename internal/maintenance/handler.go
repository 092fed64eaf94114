package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"hackreg/internal/account"
	"hackreg/internal/observability"
)

// CleanupHandler sweeps expired account locks on a schedule. Expired locks
// already lift implicitly at login time; the sweep just keeps the table from
// accumulating stale lock rows. Guarded by a bearer cron secret and disabled
// entirely when none is configured.
type CleanupHandler struct {
	store      account.Store
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(store account.Store, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		store:      store,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.store.ClearExpiredLocks(r.Context(), time.Now().UTC(), h.batchSize)
	if err != nil {
		h.logger.Error("lock_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("lock_cleanup_completed", map[string]any{"cleared_locks": cleared})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"cleared_locks": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
