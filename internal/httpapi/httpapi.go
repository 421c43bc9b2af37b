// Package httpapi exposes the feed and the age formatter over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaafuria/furia-feed/internal/feed"
	"github.com/aaafuria/furia-feed/internal/reltime"
	"github.com/aaafuria/furia-feed/internal/telemetry"
)

// Headers carrying the caller identity, set by the authenticating proxy.
// Every mutation requires HeaderUserID; reads use it to track views.
const (
	HeaderUserID   = "X-User-ID"
	HeaderNickname = "X-User-Nickname"
	HeaderStaff    = "X-User-Staff"
)

// Feed is the subset of feed.Manager served over HTTP.
type Feed interface {
	Publish(ctx context.Context, authorID, nickname, title, content, parentID string) (feed.Item, error)
	Rate(ctx context.Context, postID, userID string, liked bool) (int, error)
	Delete(ctx context.Context, postID, requester string, isStaff bool) error
	Open(ctx context.Context, id, viewerID string) (feed.Thread, error)
	ListMain(ctx context.Context, viewerID string, page, pageSize int) ([]feed.Item, error)
}

// Handler serves the feed API.
type Handler struct {
	feed     Feed
	ages     *reltime.Formatter
	logger   *slog.Logger
	tp       trace.TracerProvider
	validate *validator.Validate
}

// NewHandler returns a Handler.
func NewHandler(f Feed, ages *reltime.Formatter, logger *slog.Logger, tp trace.TracerProvider) *Handler {
	return &Handler{
		feed:     f,
		ages:     ages,
		logger:   logger,
		tp:       tp,
		validate: validator.New(),
	}
}

// Routes returns the instrumented API handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", h.listPosts)
	mux.HandleFunc("POST /posts", h.publish)
	mux.HandleFunc("GET /posts/{id}", h.getPost)
	mux.HandleFunc("POST /posts/{id}/rate", h.rate)
	mux.HandleFunc("DELETE /posts/{id}", h.deletePost)
	mux.HandleFunc("GET /reltime", h.relTime)

	return otelhttp.NewHandler(mux, "feedsvc.api", otelhttp.WithTracerProvider(h.tp))
}

type postJSON struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content"`
	Ratio     int        `json:"ratio"`
	Replies   int        `json:"replies"`
	AuthorID  string     `json:"author_id"`
	Nickname  string     `json:"nickname"`
	CreatedAt time.Time  `json:"created_at"`
	Age       string     `json:"age"`
	Summary   string     `json:"summary"`
	Viewed    bool       `json:"viewed"`
	Children  []postJSON `json:"children,omitempty"`
}

func toJSON(it feed.Item) postJSON {
	out := postJSON{
		ID:        it.ID,
		Title:     it.Title,
		Content:   it.Content,
		Ratio:     it.Ratio,
		Replies:   it.Replies,
		AuthorID:  it.AuthorID,
		Nickname:  it.Nickname,
		CreatedAt: it.CreatedAt,
		Age:       it.Age,
		Summary:   feed.Summary(it),
		Viewed:    it.Viewed,
	}
	if it.IsReply() {
		out.ParentID = *it.ParentID
	}
	return out
}

func toJSONList(items []feed.Item) []postJSON {
	out := make([]postJSON, len(items))
	for i, it := range items {
		out[i] = toJSON(it)
	}
	return out
}

// toJSONThreads renders replies with their own replies nested as children.
func toJSONThreads(threads []feed.Thread) []postJSON {
	out := make([]postJSON, len(threads))
	for i, t := range threads {
		out[i] = toJSON(t.Item)
		out[i].Children = toJSONThreads(t.Children)
	}
	return out
}

// userID returns the caller, or "" for anonymous requests.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

// requireUser writes 401 and reports false when the caller is anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderUserID + " header"})
		return "", false
	}
	return id, true
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.feed.ListMain(r.Context(), userID(r), cast.ToInt(q.Get("page")), cast.ToInt(q.Get("page_size")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": toJSONList(items)})
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	th, err := h.feed.Open(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"post":    toJSON(th.Item),
		"replies": toJSONThreads(th.Children),
	})
}

type publishRequest struct {
	Title    string `json:"title" validate:"max=200"`
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	author, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if !h.decode(w, r, &req) {
		return
	}
	nickname := strings.TrimSpace(r.Header.Get(HeaderNickname))
	if nickname == "" {
		nickname = author
	}
	it, err := h.feed.Publish(r.Context(), author, nickname, req.Title, req.Content, req.ParentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJSON(it))
}

type rateRequest struct {
	Liked *bool `json:"liked" validate:"required"`
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ratio, err := h.feed.Rate(r.Context(), r.PathValue("id"), user, *req.Liked)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ratio": ratio})
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	requester, ok := requireUser(w, r)
	if !ok {
		return
	}
	staff := cast.ToBool(r.Header.Get(HeaderStaff))
	if err := h.feed.Delete(r.Context(), r.PathValue("id"), requester, staff); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// relTimeResponse mirrors the formatter: Relative is the phrase or false.
type relTimeResponse struct {
	Relative any    `json:"relative"`
	OK       bool   `json:"ok"`
	Display  string `json:"display"`
}

func (h *Handler) relTime(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("at") {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing at parameter"})
		return
	}
	display, ok := h.ages.RenderValueKind(r.URL.Query().Get("at"))
	resp := relTimeResponse{Relative: false, OK: ok, Display: display}
	if ok {
		resp.Relative = display
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: verrs[0].Field() + " failed " + verrs[0].Tag()})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, feed.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, feed.ErrEmptyContent),
		errors.Is(err, feed.ErrMissingTitle):
		code = http.StatusBadRequest
	case errors.Is(err, feed.ErrForbidden):
		code = http.StatusForbidden
	}
	if code == http.StatusInternalServerError {
		telemetry.LogWithTrace(r.Context(), h.logger).ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeJSON(w, code, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
