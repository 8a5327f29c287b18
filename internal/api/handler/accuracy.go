package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-nhl/internal/api/respond"
	"github.com/albapepper/scoracle-nhl/internal/cache"
)

// defaultScopeWindow is how many days GetAccuracyScopes returns without a from.
const defaultScopeWindow = 30

// GetAccuracyScopes returns daily and running aggregates per scope for
// actual dates in [from, to]. Defaults to the 30 days ending yesterday.
func (h *Handler) GetAccuracyScopes(w http.ResponseWriter, r *http.Request) {
	yesterday := h.jobs.Today().AddDate(0, 0, -1)
	from, to, ok := h.dateRange(w, r, "from", "to", yesterday.AddDate(0, 0, -defaultScopeWindow+1), yesterday)
	if !ok {
		return
	}
	key := fmt.Sprintf("%sscopes:%s:%s", cache.AccuracyPrefix, from.Format(time.DateOnly), to.Format(time.DateOnly))
	h.passthrough(w, r, key, h.ttlFor(to), "api_accuracy_scopes", from, to)
}

// GetAccuracyStats returns per-stat aggregates for one actual date.
func (h *Handler) GetAccuracyStats(w http.ResponseWriter, r *http.Request) {
	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}
	key := fmt.Sprintf("%sstats:%s", cache.AccuracyPrefix, date.Format(time.DateOnly))
	h.passthrough(w, r, key, h.ttlFor(date), "api_accuracy_stats", date)
}

// GetAccuracyPlayers returns per-player aggregates for one actual date,
// worst MAE first.
func (h *Handler) GetAccuracyPlayers(w http.ResponseWriter, r *http.Request) {
	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}
	key := fmt.Sprintf("%splayers:%s", cache.AccuracyPrefix, date.Format(time.DateOnly))
	h.passthrough(w, r, key, h.ttlFor(date), "api_accuracy_players", date)
}

// GetPlayerHistory returns a player's scored results for actual dates in
// [from, to]. Defaults to the 30 days ending yesterday.
func (h *Handler) GetPlayerHistory(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(chi.URLParam(r, "playerID"))
	if err != nil || playerID <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PLAYER", "playerID must be a positive integer")
		return
	}
	yesterday := h.jobs.Today().AddDate(0, 0, -1)
	from, to, ok := h.dateRange(w, r, "from", "to", yesterday.AddDate(0, 0, -defaultScopeWindow+1), yesterday)
	if !ok {
		return
	}
	key := fmt.Sprintf("%shistory:%d:%s:%s", cache.AccuracyPrefix, playerID,
		from.Format(time.DateOnly), to.Format(time.DateOnly))
	h.passthrough(w, r, key, h.ttlFor(to), "api_accuracy_player_history", playerID, from, to)
}

// passthrough serves the JSON a prepared statement builds, through the cache.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, stmt string, args ...any) {
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	var raw []byte
	if err := h.db.QueryRow(r.Context(), stmt, args...).Scan(&raw); err != nil {
		h.logger.Error("Accuracy query failed", "statement", stmt, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Failed to load accuracy data")
		return
	}

	etag := h.cache.Set(key, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// ttlFor picks a short TTL for dates the daily backtest may still rewrite.
func (h *Handler) ttlFor(date time.Time) time.Duration {
	if !date.Before(h.jobs.Today().AddDate(0, 0, -1)) {
		return cache.TTLRecent
	}
	return cache.TTLFinalized
}

func (h *Handler) pathDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := parseDate("date", chi.URLParam(r, "date"), h.jobs.Location())
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return time.Time{}, false
	}
	return date, true
}
