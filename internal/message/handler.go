package message

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"chat-service/internal/errs"
	"chat-service/internal/shared/httpx"
	"chat-service/internal/shared/validate"
)

// Uploader proxies image binaries to the media collaborator and returns an
// opaque ref.
type Uploader interface {
	Upload(fieldName, fileName string, r io.Reader) (string, error)
}

// IdemStore remembers idempotency keys; satisfied by the redis-backed store.
type IdemStore interface {
	PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Handler struct {
	svc      Service
	uploader Uploader
	idem     IdemStore
}

func NewHandler(s Service, uploader Uploader, idem IdemStore) *Handler {
	return &Handler{svc: s, uploader: uploader, idem: idem}
}

// Send handles POST /messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	in, err := httpx.Decode[SendReq](r)
	if err != nil {
		return err
	}
	if err := validate.Struct(in); err != nil {
		return err
	}
	if dup := h.seenIdemKey(r, uid); dup {
		httpx.WriteJSON(w, map[string]string{"status": "duplicate"}, http.StatusOK)
		return nil
	}
	v, err := h.svc.Append(r.Context(), uid, in)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, v, http.StatusCreated)
	return nil
}

// UploadAndSend handles POST /messages/upload: multipart image plus the
// send fields; the binary goes to the media service, the ref to the ledger.
func (h *Handler) UploadAndSend(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	if h.uploader == nil {
		return errs.Validationf("image upload is not configured")
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		return errs.Validationf("invalid multipart form: %v", err)
	}
	convID, err := strconv.ParseInt(r.FormValue("conversation_id"), 10, 64)
	if err != nil || convID <= 0 {
		return errs.Validationf("invalid conversation id")
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return errs.Validationf("image file is required")
	}
	defer file.Close()

	ref, err := h.uploader.Upload("file", header.Filename, file)
	if err != nil {
		return errs.Transientf(err, "media upload")
	}
	v, err := h.svc.Append(r.Context(), uid, SendReq{
		ConversationID: convID,
		Content:        r.FormValue("content"),
		ImageRef:       ref,
	})
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, v, http.StatusCreated)
	return nil
}

// List handles GET /messages/{conversation_id}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) error {
	if _, err := httpx.UserFromCtx(r); err != nil {
		return err
	}
	convID, err := pathConversationID(r)
	if err != nil {
		return err
	}
	out, err := h.svc.ListForConversation(r.Context(), convID)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]any{"items": out}, http.StatusOK)
	return nil
}

// MarkSeen handles POST /messages/{conversation_id}/seen.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	convID, err := pathConversationID(r)
	if err != nil {
		return err
	}
	if err := h.svc.MarkSeen(r.Context(), convID, uid); err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	return nil
}

// seenIdemKey reports whether the request's idempotency key was already
// used. Redis being down never blocks a send; the ledger stays the source
// of truth.
func (h *Handler) seenIdemKey(r *http.Request, uid string) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idem == nil {
		return false
	}
	ok, err := h.idem.PutNX(r.Context(), uid+":"+key, 24*time.Hour)
	if err != nil {
		log.Printf("idempotency check: %v", err)
		return false
	}
	return !ok
}

func pathConversationID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("conversation_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("invalid conversation id")
	}
	return id, nil
}
