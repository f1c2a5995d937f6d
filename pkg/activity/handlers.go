package activity

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tasklane/pkg/httputil"
	"github.com/platinummonkey/tasklane/pkg/observability"
)

// Handlers provides HTTP handlers for the activity log API
type Handlers struct {
	store Store
}

// NewHandlers creates new activity handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the activity routes behind guard, which should
// enforce the activity.view permission.
func (h *Handlers) RegisterRoutes(router *mux.Router, guard func(http.Handler) http.Handler) {
	router.Handle("/activity", guard(http.HandlerFunc(h.listEvents))).Methods(http.MethodGet)
	router.Handle("/activity/{id}", guard(http.HandlerFunc(h.getEvent))).Methods(http.MethodGet)
}

// listEvents handles GET /activity
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("activity search failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.limit(),
		"offset": filter.Offset,
	})
}

// getEvent handles GET /activity/{id}
func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	event, err := h.store.Get(r.Context(), id)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("activity lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	if event == nil {
		httputil.WriteNotFoundError(w, "event not found")
		return
	}
	httputil.WriteSuccess(w, event)
}

func parseFilter(r *http.Request) (Filter, error) {
	var (
		filter Filter
		err    error
	)

	if filter.ActorUserID, err = httputil.ParseQueryOptionalInt64(r, "user_id"); err != nil {
		return filter, err
	}
	if filter.ProjectID, err = httputil.ParseQueryOptionalInt64(r, "project_id"); err != nil {
		return filter, err
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultSearchLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	for _, et := range r.URL.Query()["event_type"] {
		filter.EventTypes = append(filter.EventTypes, EventType(et))
	}
	filter.ResourceType = ResourceType(httputil.ParseQueryString(r, "resource_type", ""))
	filter.ResourceID = httputil.ParseQueryString(r, "resource_id", "")

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, err
		}
		filter.StartTime = &t
	}
	return filter, nil
}
