package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/audit"
	"github.com/openclaw/wagate/internal/engine"
	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/repository"
	"github.com/openclaw/wagate/internal/util"
)

const chatIDSuffix = "@c.us"

// MediaSource resolves media descriptors into attachable payloads.
type MediaSource interface {
	Resolve(ctx context.Context, d model.MediaDescriptor) (*model.NormalizedMedia, error)
}

// MessageService dispatches outbound messages through a session's engine handle.
type MessageService struct {
	store    repository.SessionStore
	resolver MediaSource
}

func NewMessageService(store repository.SessionStore, resolver MediaSource) *MessageService {
	return &MessageService{
		store:    store,
		resolver: resolver,
	}
}

// ChatID normalizes a raw destination into the engine's chat address.
func ChatID(destination string) (string, error) {
	digits := util.DigitsOnly(destination)
	if digits == "" {
		return "", apperrors.InvalidDestination(destination)
	}
	return digits + chatIDSuffix, nil
}

// Send delivers req through the session's engine. Media items are sent one by
// one in order; the text rides as the caption of the first item only. A failed
// item does not stop the rest and every item gets an outcome. The call itself
// fails only when a single item was requested and it failed. Every
// descriptor's Release runs exactly once, including for items never attempted.
func (s *MessageService) Send(ctx context.Context, sessionID string, req model.SendRequest) ([]model.SendOutcome, error) {
	released := make([]bool, len(req.Media))
	release := func(i int) {
		if released[i] {
			return
		}
		released[i] = true
		if req.Media[i].Release != nil {
			req.Media[i].Release()
		}
	}
	defer func() {
		for i := range req.Media {
			release(i)
		}
	}()

	if strings.TrimSpace(req.Text) == "" && len(req.Media) == 0 {
		return nil, apperrors.ValidationError("Either a message or media is required.")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, apperrors.MissingRequired("phoneNumber")
	}

	handle, status, err := s.store.ReadyHandle(sessionID)
	if err != nil || status != model.SessionStatusReady || handle == nil {
		return nil, apperrors.SessionNotReady()
	}

	chatID, err := ChatID(req.Destination)
	if err != nil {
		return nil, err
	}

	var outcomes []model.SendOutcome
	var failures []*apperrors.AppError

	if len(req.Media) == 0 {
		id, err := handle.SendText(ctx, chatID, req.Text)
		if err != nil {
			appErr := apperrors.Transport(err)
			outcomes = append(outcomes, failedOutcome(0, appErr))
			failures = append(failures, appErr)
		} else {
			outcomes = append(outcomes, model.SendOutcome{Index: 0, MessageID: id})
		}
	}

	for i, descriptor := range req.Media {
		if err := ctx.Err(); err != nil {
			canceled := apperrors.Transport(err).WithDetails("request canceled")
			for j := i; j < len(req.Media); j++ {
				outcomes = append(outcomes, model.SendOutcome{
					Index: j,
					Error: &model.OutcomeError{Code: string(canceled.Code), Message: "request canceled"},
				})
				release(j)
			}
			s.logSummary(ctx, sessionID, outcomes, len(failures)+len(req.Media)-i)
			return outcomes, canceled
		}

		caption := ""
		if i == 0 {
			caption = req.Text
		}

		outcome, appErr := s.sendMedia(ctx, handle, chatID, i, descriptor, caption)
		release(i)

		outcomes = append(outcomes, outcome)
		if appErr != nil {
			log.Warn().
				Err(appErr).
				Str("sessionId", sessionID).
				Int("index", i).
				Msg("media item failed")
			failures = append(failures, appErr)
		}
	}

	s.logSummary(ctx, sessionID, outcomes, len(failures))

	if len(outcomes) == 1 && len(failures) == 1 {
		return outcomes, failures[0]
	}
	return outcomes, nil
}

func (s *MessageService) sendMedia(
	ctx context.Context,
	handle engine.Handle,
	chatID string,
	index int,
	descriptor model.MediaDescriptor,
	caption string,
) (model.SendOutcome, *apperrors.AppError) {
	media, err := s.resolver.Resolve(ctx, descriptor)
	if err != nil {
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			appErr = apperrors.FetchFailed(descriptorKind(descriptor), err)
		}
		return failedOutcome(index, appErr), appErr
	}

	id, err := handle.SendMedia(ctx, chatID, media, caption)
	if err != nil {
		appErr := apperrors.Transport(err)
		return failedOutcome(index, appErr), appErr
	}

	return model.SendOutcome{Index: index, MessageID: id, Caption: caption != ""}, nil
}

// descriptorKind names the source Resolve would try first for d.
func descriptorKind(d model.MediaDescriptor) string {
	switch {
	case d.LocalPath != "":
		return "local file"
	case d.RemoteURL != "":
		return "url"
	case d.Data != "":
		return "inline data"
	default:
		return "descriptor"
	}
}

func failedOutcome(index int, appErr *apperrors.AppError) model.SendOutcome {
	msg := appErr.Message
	if cause := appErr.Unwrap(); cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return model.SendOutcome{
		Index: index,
		Error: &model.OutcomeError{Code: string(appErr.Code), Message: msg},
	}
}

func (s *MessageService) logSummary(ctx context.Context, sessionID string, outcomes []model.SendOutcome, failed int) {
	log.Info().
		Str("sessionId", sessionID).
		Int("count", len(outcomes)).
		Int("failed", failed).
		Msg("message dispatch finished")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMessageDispatch,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"count":  len(outcomes),
			"failed": failed,
		},
	})
}

// MessageIDs collects the ids of the successful outcomes in order.
func MessageIDs(outcomes []model.SendOutcome) []string {
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded() {
			ids = append(ids, o.MessageID)
		}
	}
	return ids
}
