package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/store"
	"github.com/nhle/webmail/internal/sync"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxBatchDelete  = 500
)

type pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func newPagination(total, page, limit int) pagination {
	return pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// intParam reads a positive integer query parameter, returning def when
// it is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badRequest(fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

// pageParams reads page and limit, capping limit at maxPageSize.
func pageParams(r *http.Request) (page, limit int, err error) {
	if page, err = intParam(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(r, "limit", defaultPageSize); err != nil {
		return 0, 0, err
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, nil
}

func nonNil(msgs []model.StoredMessage) []model.StoredMessage {
	if msgs == nil {
		return []model.StoredMessage{}
	}
	return msgs
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	opts := sync.SyncOptions{Mailbox: r.URL.Query().Get("mailbox")}

	var err error
	if opts.Limit, err = intParam(r, "limit", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			s.writeError(w, r, badRequest("offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	result, err := s.syncer.RunOnce(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result.Messages = nonNil(result.Messages)
	writeOK(w, result, "Emails synced successfully")
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]interface{}{"accounts": s.syncer.Statuses()}, "")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := store.MessageFilter{
		UnreadOnly: q.Get("unreadOnly") == "true",
		SortBy:     q.Get("sortBy"),
		SortDesc:   !strings.EqualFold(q.Get("order"), "asc"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	msgs, total, err := s.store.ListMessages(r.Context(), s.user.ID, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"emails":     nonNil(msgs),
		"pagination": newPagination(total, page, limit),
	}, "")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		s.writeError(w, r, badRequest("Search query is required"))
		return
	}

	searchIn := q.Get("searchIn")
	switch searchIn {
	case "":
		searchIn = store.SearchAll
	case store.SearchAll, store.SearchSubject, store.SearchFrom, store.SearchBody:
	default:
		s.writeError(w, r, badRequest("searchIn must be one of all, subject, from, body"))
		return
	}

	page, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msgs, total, err := s.store.ListMessages(r.Context(), s.user.ID, store.MessageFilter{
		Query:    query,
		SearchIn: searchIn,
		SortDesc: true,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"emails":     nonNil(msgs),
		"pagination": newPagination(total, page, limit),
		"query":      query,
	}, "")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]interface{}{"stats": stats}, "")
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.FindMessageByID(r.Context(), s.user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]interface{}{"email": msg}, "")
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return badRequest("invalid JSON body")
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsRead *bool `json:"isRead"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")

	msg, err := s.store.FindMessageByID(ctx, s.user.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	isRead := !msg.IsRead
	if body.IsRead != nil {
		isRead = *body.IsRead
	}

	if msg, err = s.store.SetRead(ctx, s.user.ID, id, isRead); err != nil {
		s.writeError(w, r, err)
		return
	}

	state := "unread"
	if msg.IsRead {
		state = "read"
	}
	writeOK(w, map[string]interface{}{"email": msg}, "Email marked as "+state)
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsStarred *bool `json:"isStarred"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")

	msg, err := s.store.FindMessageByID(ctx, s.user.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	starred := !msg.IsStarred
	if body.IsStarred != nil {
		starred = *body.IsStarred
	}

	if msg, err = s.store.SetStarred(ctx, s.user.ID, id, starred); err != nil {
		s.writeError(w, r, err)
		return
	}

	state := "unstarred"
	if msg.IsStarred {
		state = "starred"
	}
	writeOK(w, map[string]interface{}{"email": msg}, "Email "+state)
}

// identity resolves the account identity for a delete. Without one the
// remote step fails and the local delete still goes ahead.
func (s *Server) identity(r *http.Request) model.Identity {
	id, err := s.creds.Identity(r.Context(), s.user.Email)
	if err != nil {
		s.log.WithError(err).Warn("no identity for remote delete")
		return model.Identity{Address: s.user.Email}
	}
	return id
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := s.deleter.DeleteMessage(r.Context(), s.user.ID, r.PathValue("id"), s.identity(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Email deleted successfully from Gmail and database"
	if !res.DeletedFromRemote {
		message = "Email deleted from database; it could not be removed from Gmail"
	}
	writeOK(w, res, message)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body.IDs) == 0 {
		s.writeError(w, r, badRequest("ids is required"))
		return
	}
	if len(body.IDs) > maxBatchDelete {
		s.writeError(w, r, badRequest(fmt.Sprintf("at most %d ids per request", maxBatchDelete)))
		return
	}

	res := s.deleter.DeleteBatch(r.Context(), s.user.ID, body.IDs, s.identity(r))
	writeOK(w, res, fmt.Sprintf("%d emails deleted", res.Deleted+res.LocalOnly))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByEmail(r.Context(), s.user.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]interface{}{"user": user}, "")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"}, "")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Gmail IMAP Viewer API", Data: map[string]string{"version": Version}})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{
		Success: false,
		Message: fmt.Sprintf("Route %s not found", r.URL.Path),
	})
}
