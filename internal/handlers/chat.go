package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/OpenFieldOps/open-job-api/internal/api/middleware"
	"github.com/OpenFieldOps/open-job-api/internal/chat"
)

const maxMessageLength = 4096

var errInvalidBody = errors.New("invalid request body")

// CreateChatRequest represents the chat creation request.
type CreateChatRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"memberIds"`
}

// SetMembersRequest represents the membership replacement request.
type SetMembersRequest struct {
	MemberIDs []int64 `json:"memberIds"`
}

// SendMessageRequest represents the JSON form of the send message request.
// Requests with attachments use multipart/form-data instead, with a "text"
// field and one or more "files" parts.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ListChats returns every chat the principal belongs to, annotated with
// its last message.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chats, err := h.chat.ListChatsForUser(r.Context(), principal.ID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, chats)
}

// CreateChat creates a chat with an initial member set (admin only).
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.Error(w, http.StatusUnauthorized, "admin required")
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.chat.CreateChat(r.Context(), req.Name, req.MemberIDs)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, created)
}

// SetChatMembers replaces a chat's membership set (admin only).
func (h *Handler) SetChatMembers(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.Error(w, http.StatusUnauthorized, "admin required")
		return
	}

	chatID, err := urlID(r, "chatId")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	var req SetMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.chat.SetMembers(r.Context(), chatID, req.MemberIDs); err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetChatMessages returns one page of a chat's messages, most recent
// first.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chatID, err := urlID(r, "chatId")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	limit := chat.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}

	result, err := h.chat.ListMessages(r.Context(), chatID, principal.ID, page, limit)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, result)
}

// SendMessage posts a message to a chat, with optional multipart file
// attachments.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chatID, err := urlID(r, "chatId")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	text, attachments, closeFiles, err := parseSendMessage(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeFiles()
	if text == "" && len(attachments) == 0 {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(text) > maxMessageLength {
		h.Error(w, http.StatusUnprocessableEntity, "text too long")
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), chatID, principal.ID, text, attachments)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// parseSendMessage extracts the text and attachments from either a JSON
// body or a multipart form. The returned cleanup closes the attachment
// files; the caller defers it until after the attachments are consumed,
// since large multipart uploads spill to temp files whose handles must
// outlive the parse.
func parseSendMessage(r *http.Request) (string, []chat.Attachment, func(), error) {
	noop := func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, noop, errInvalidBody
		}
		return req.Text, nil, noop, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, noop, errInvalidBody
	}

	var files []multipart.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	var attachments []chat.Attachment
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				closeFiles()
				return "", nil, noop, errInvalidBody
			}
			files = append(files, f)
			attachments = append(attachments, chat.Attachment{
				FileName: header.Filename,
				Reader:   f,
			})
		}
	}
	return r.FormValue("text"), attachments, closeFiles, nil
}
