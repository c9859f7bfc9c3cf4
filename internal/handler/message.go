package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/httputil"
	"github.com/openclaw/wagate/internal/middleware"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/service"
)

const multipartMemory = 8 << 20

type MessageHandler struct {
	messageService *service.MessageService
	uploadDir      string
}

func NewMessageHandler(messageService *service.MessageService, uploadDir string) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		uploadDir:      uploadDir,
	}
}

type sendMessageBody struct {
	PhoneNumber string          `json:"phoneNumber"`
	Message     string          `json:"message"`
	Media       json.RawMessage `json:"media"`
}

type sendMessageResponse struct {
	Success    bool                `json:"success"`
	MessageIDs []string            `json:"messageIds"`
	Results    []model.SendOutcome `json:"results"`
}

type sendFailureResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
	Results []model.SendOutcome `json:"results,omitempty"`
}

// POST /send_message
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)

	req, err := h.parseRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcomes, err := h.messageService.Send(ctx, sessionID, req)
	if err != nil {
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			appErr = apperrors.Internal("An unexpected error occurred").WithCause(err)
		}
		if outcomes == nil {
			httputil.WriteError(w, appErr)
			return
		}

		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to send message")
		details := appErr.Details
		if details == nil && appErr.Unwrap() != nil {
			details = appErr.Unwrap().Error()
		}
		writeJSON(w, httputil.StatusFromCode(appErr.Code), sendFailureResponse{
			Error:   "Failed to send message.",
			Code:    appErr.Code,
			Details: details,
			Results: outcomes,
		})
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Success:    true,
		MessageIDs: service.MessageIDs(outcomes),
		Results:    outcomes,
	})
}

func (h *MessageHandler) parseRequest(r *http.Request) (model.SendRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return h.parseMultipart(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return model.SendRequest{}, apperrors.ValidationError("Invalid form body")
		}
		return model.SendRequest{
			Destination: r.PostFormValue("phoneNumber"),
			Text:        r.PostFormValue("message"),
			Media:       parseMediaString(r.PostFormValue("media")),
		}, nil
	default:
		return parseJSON(r)
	}
}

func parseJSON(r *http.Request) (model.SendRequest, error) {
	var body sendMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.SendRequest{}, apperrors.ValidationError("Request body too large")
		}
		return model.SendRequest{}, apperrors.ValidationError("Invalid JSON body")
	}

	media, err := parseMediaJSON(body.Media)
	if err != nil {
		return model.SendRequest{}, apperrors.InvalidInput("media", err.Error())
	}

	return model.SendRequest{
		Destination: body.PhoneNumber,
		Text:        body.Message,
		Media:       media,
	}, nil
}

func (h *MessageHandler) parseMultipart(r *http.Request) (model.SendRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return model.SendRequest{}, apperrors.ValidationError("Invalid multipart body")
	}
	defer r.MultipartForm.RemoveAll()

	req := model.SendRequest{
		Destination: r.FormValue("phoneNumber"),
		Text:        r.FormValue("message"),
	}

	if files := r.MultipartForm.File["media"]; len(files) > 0 {
		descriptor, err := h.stageUpload(files[0])
		if err != nil {
			log.Error().Err(err).Msg("failed to stage upload")
			return model.SendRequest{}, apperrors.Internal("Failed to store uploaded file").WithCause(err)
		}
		req.Media = append(req.Media, descriptor)
	}

	if values := r.MultipartForm.Value["media"]; len(values) > 0 {
		req.Media = append(req.Media, parseMediaString(values[0])...)
	}

	return req, nil
}

// stageUpload copies an uploaded file into the upload directory. The returned
// descriptor's Release removes it.
func (h *MessageHandler) stageUpload(fh *multipart.FileHeader) (model.MediaDescriptor, error) {
	src, err := fh.Open()
	if err != nil {
		return model.MediaDescriptor{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(h.uploadDir, 0o700); err != nil {
		return model.MediaDescriptor{}, fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return model.MediaDescriptor{}, fmt.Errorf("create staged file: %w", err)
	}
	path := dst.Name()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return model.MediaDescriptor{}, fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return model.MediaDescriptor{}, fmt.Errorf("close staged file: %w", err)
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}

	return model.MediaDescriptor{
		LocalPath: path,
		MimeType:  mimeType,
		Filename:  fh.Filename,
		Release: func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", path).Msg("failed to remove staged upload")
			}
		},
	}, nil
}

// parseMediaJSON accepts a single descriptor, an array of descriptors, or a
// string holding either.
func parseMediaJSON(raw json.RawMessage) ([]model.MediaDescriptor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var items []model.MediaDescriptor
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("expected an array of media objects")
		}
		return items, nil
	case '{':
		var item model.MediaDescriptor
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("expected a media object")
		}
		return []model.MediaDescriptor{item}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid string")
		}
		return parseMediaString(s), nil
	default:
		return nil, fmt.Errorf("expected an object or array")
	}
}

// parseMediaString parses a media form field. A value that is not valid JSON
// still yields one descriptor so the item is reported as unsupported.
func parseMediaString(s string) []model.MediaDescriptor {
	if s == "" {
		return nil
	}
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		if items, err := parseMediaJSON(trimmed); err == nil {
			return items
		}
	}
	return []model.MediaDescriptor{{}}
}
