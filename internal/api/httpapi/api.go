// Package httpapi exposes the player over HTTP: a directive dispatch
// endpoint, a state endpoint and a server-sent event stream of outbound
// messages.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/app/player"
)

// dispatchTimeout bounds the wait for a directive verdict. The player decides
// on its own goroutine within microseconds; the cap guards a wedged agent.
const dispatchTimeout = 5 * time.Second

// Agent is the subset of the player surface the HTTP layer drives.
type Agent interface {
	PreHandle(d player.Directive, r player.Result)
	Handle(messageID string) bool
	Snapshot() (player.Snapshot, error)
}

var _ Agent = (*player.Player)(nil)

// API serves the HTTP surface around an agent and its event hub.
type API struct {
	agent Agent
	hub   *Hub
}

// New creates the API. The hub must be the one wired into the agent as its
// message sender, otherwise the event stream stays silent.
func New(agent Agent, hub *Hub) *API {
	return &API{agent: agent, hub: hub}
}

// Router builds the route tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.With(jsonCtx).Post("/directives", a.postDirective)
		r.With(jsonCtx).Get("/state", a.getState)
		r.Get("/events", a.streamEvents)
	})
	return r
}

// directiveRequest is the body of a directive POST. MessageID is optional; a
// missing one is filled with a fresh UUID.
type directiveRequest struct {
	Name      string          `json:"name"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload"`
}

func (a *API) postDirective(w http.ResponseWriter, r *http.Request) {
	var req directiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.Wrap(err, "malformed directive body"), http.StatusBadRequest)
		return
	}
	switch req.Name {
	case player.NamePlay, player.NameStop, player.NameClearQueue:
	default:
		writeError(w, r, errors.Newf("unsupported directive %q", req.Name), http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.New().String()
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	res := newDispatchResult()
	a.agent.PreHandle(player.Directive{
		Name:      req.Name,
		MessageID: req.MessageID,
		Payload:   req.Payload,
	}, res)

	// All known directives report their verdict at the prepare stage, so a
	// rejected one never reaches Handle.
	if err := res.wait(r.Context()); err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	if !a.agent.Handle(req.MessageID) {
		writeError(w, r, errors.Newf("directive %s was dropped before handling", req.MessageID), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"messageId": req.MessageID})
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	snap, err := a.agent.Snapshot()
	if err != nil {
		writeError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

// streamEvents serves the hub as a server-sent event stream. Each event
// carries the hub sequence number as its id, the message name as its event
// type and the serialized envelope as data.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.SeqNo, ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}

// dispatchResult implements player.Result for one HTTP dispatch. The first
// outcome wins.
type dispatchResult struct {
	once   sync.Once
	done   chan struct{}
	failed bool
	desc   string
}

func newDispatchResult() *dispatchResult {
	return &dispatchResult{done: make(chan struct{})}
}

func (d *dispatchResult) SetCompleted() {
	d.once.Do(func() { close(d.done) })
}

func (d *dispatchResult) SetFailed(description string) {
	d.once.Do(func() {
		d.failed = true
		d.desc = description
		close(d.done)
	})
}

func (d *dispatchResult) wait(ctx context.Context) error {
	select {
	case <-d.done:
		if d.failed {
			return errors.Newf("directive rejected: %s", d.desc)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dispatchTimeout):
		return errors.New("directive dispatch timed out")
	}
}

// jsonCtx sets the response content type for JSON endpoints.
func jsonCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	zlog.Error().Msgf("error serving %s %s: %v", r.Method, r.URL.Path, err)
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Msgf("error encoding response: %v", err)
	}
}
