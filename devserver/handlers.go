package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/model"
	"github.com/richinex/clonr/storage"
)

const maxBody = 64 << 10

// GET /tags
func (s *server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.ListTags(r.Context())
	if err != nil {
		s.internalError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// GET /clones?tags=&name=&sort=&similar=&offset=&limit=
func (s *server) listClones(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := api.ParseSortOrder(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, limit, ok := parseWindow(w, r)
	if !ok {
		return
	}
	clones, err := s.store.ListClones(r.Context(), storage.CloneFilter{
		Tags:    q["tags"],
		Name:    q.Get("name"),
		Sort:    string(sort),
		Similar: q.Get("similar"),
	}, offset, limit)
	if err != nil {
		s.internalError(w, "list clones", err)
		return
	}
	writeJSON(w, http.StatusOK, clones)
}

// GET /conversations/sidebar?name=&convo_limit=&offset=&limit=
func (s *server) sidebar(w http.ResponseWriter, r *http.Request) {
	convoLimit, err := strconv.Atoi(r.URL.Query().Get("convo_limit"))
	if err != nil || convoLimit < 0 {
		convoLimit = 0
	}
	offset, limit, ok := parseWindow(w, r)
	if !ok {
		return
	}
	items, err := s.store.Sidebar(r.Context(), userID(r), storage.SidebarFilter{
		Name:       r.URL.Query().Get("name"),
		ConvoLimit: convoLimit,
	}, offset, limit)
	if err != nil {
		s.internalError(w, "sidebar", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GET /conversations?clone_id=&offset=&limit=
func (s *server) listConversations(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := parseWindow(w, r)
	if !ok {
		return
	}
	items, err := s.store.ListConversations(r.Context(), userID(r), r.URL.Query().Get("clone_id"), offset, limit)
	if err != nil {
		s.internalError(w, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type createConversationReq struct {
	CloneID string `json:"clone_id"`
	Name    string `json:"name"`
}

// POST /conversations
func (s *server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CloneID == "" {
		writeError(w, http.StatusBadRequest, "clone_id is required")
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), userID(r), req.CloneID, req.Name)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "clone not found")
		return
	}
	if err != nil {
		s.internalError(w, "create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// GET /conversations/{conversationID}/messages?is_active=&is_main=&offset=&limit=
func (s *server) listMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownConversation(w, r)
	if !ok {
		return
	}
	offset, limit, ok := parseWindow(w, r)
	if !ok {
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), conv.ID, storage.MessageFilter{
		OnlyActive: parseBool(r, "is_active"),
		OnlyMain:   parseBool(r, "is_main"),
	}, offset, limit)
	if err != nil {
		s.internalError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type createMessageReq struct {
	Content string `json:"content"`
}

// POST /conversations/{conversationID}/messages
func (s *server) createMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownConversation(w, r)
	if !ok {
		return
	}
	var req createMessageReq
	if !decodeBody(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !s.checkQuota(w, r) {
		return
	}

	msg, err := s.store.AddMessage(r.Context(), storage.NewMessage{
		ConversationID: conv.ID,
		UserID:         userID(r),
		SenderName:     userID(r),
		Content:        content,
	})
	if err != nil {
		s.internalError(w, "create message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /conversations/{conversationID}/generate?is_revision=
func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownConversation(w, r)
	if !ok {
		return
	}
	if !s.checkQuota(w, r) {
		return
	}
	ctx := r.Context()

	if parseBool(r, "is_revision") {
		err := s.store.RetireLatestReply(ctx, conv.ID)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "no reply to revise")
			return
		}
		if err != nil {
			s.internalError(w, "retire reply", err)
			return
		}
	}

	clone, err := s.store.GetClone(ctx, conv.CloneID)
	if err != nil {
		s.internalError(w, "get clone", err)
		return
	}
	history, err := s.store.ListMessages(ctx, conv.ID,
		storage.MessageFilter{OnlyActive: true, OnlyMain: true}, 0, historyLimit)
	if err != nil {
		s.internalError(w, "list history", err)
		return
	}

	text, err := s.replier.Reply(ctx, clone, history)
	if err != nil {
		s.logger.Warn("reply generation failed",
			zap.String("conversation", conv.ID),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "reply generation failed")
		return
	}

	var parentID string
	for _, m := range history {
		if !m.IsClone {
			parentID = m.ID
			break
		}
	}
	msg, err := s.store.AddMessage(ctx, storage.NewMessage{
		ConversationID: conv.ID,
		UserID:         userID(r),
		SenderName:     clone.Name,
		Content:        text,
		IsClone:        true,
		ParentID:       parentID,
	})
	if err != nil {
		s.internalError(w, "store reply", err)
		return
	}
	if _, err := s.store.IncrementUsage(ctx, userID(r)); err != nil {
		s.internalError(w, "count usage", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ownConversation loads the conversation in the URL. Conversations of other
// users are reported as missing.
func (s *server) ownConversation(w http.ResponseWriter, r *http.Request) (model.Conversation, bool) {
	conv, err := s.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err == nil && conv.UserID != userID(r) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return model.Conversation{}, false
	}
	if err != nil {
		s.internalError(w, "get conversation", err)
		return model.Conversation{}, false
	}
	return conv, true
}

// checkQuota answers 402 once the user has used all free replies.
func (s *server) checkQuota(w http.ResponseWriter, r *http.Request) bool {
	if s.freeLimit <= 0 {
		return true
	}
	used, err := s.store.Usage(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, "read usage", err)
		return false
	}
	if used >= s.freeLimit {
		writeError(w, http.StatusPaymentRequired, "You have used all of your free messages")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil || len(body) > maxBody {
		writeError(w, http.StatusBadRequest, "body read error or too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
