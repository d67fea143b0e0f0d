// Package chat prepares chat turns: it records the conversation, builds the
// upstream request and hands back a started streaming session.
package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/anthropic/messages"
	"github.com/Egham-7/medchat/internal/services/history"
	"github.com/Egham-7/medchat/internal/services/prompts"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/registry"
	"github.com/Egham-7/medchat/internal/services/stream/session"

	"github.com/anthropics/anthropic-sdk-go"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const persistTimeout = 10 * time.Second

// Service wires history, prompts and the Anthropic client into sessions
type Service struct {
	history     *history.Service
	messages    *messages.MessagesService
	attachments *messages.AttachmentConverter
	registry    *registry.Registry
	idleTimeout time.Duration
	now         func() time.Time
}

func NewService(
	historySvc *history.Service,
	messagesSvc *messages.MessagesService,
	attachments *messages.AttachmentConverter,
	reg *registry.Registry,
	idleTimeout time.Duration,
) *Service {
	return &Service{
		history:     historySvc,
		messages:    messagesSvc,
		attachments: attachments,
		registry:    reg,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Registry exposes the running-session registry for stop requests
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// StartChat records the latest user turn and starts the assistant reply.
// The returned release must be called once the session has finished.
func (s *Service) StartChat(
	ctx context.Context,
	userID string,
	req *models.ChatRequest,
	model models.ChatModel,
	requestID string,
) (*session.Session, func(), error) {
	userMessage, err := messages.MostRecentUserMessage(req.Messages)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ensureChat(ctx, userID, req.ID, userMessage.Content, requestID); err != nil {
		return nil, nil, err
	}

	if err := s.saveUserMessage(ctx, req.ID, userMessage); err != nil {
		return nil, nil, models.NewInternalError("failed to save message", err)
	}

	system, err := s.systemPrompt(ctx, userID, requestID)
	if err != nil {
		return nil, nil, err
	}

	converted, err := s.attachments.ConvertMessages(ctx, req.Messages, requestID)
	if err != nil {
		return nil, nil, models.NewValidationError("failed to process attachment", err)
	}

	params := s.messages.BuildParams(model.APIIdentifier, system, converted)
	chatID := req.ID
	sess := session.New(s.messages.Opener(params, requestID), session.Options{
		RequestID:   requestID,
		IdleTimeout: s.idleTimeout,
		OnComplete: func(snap contracts.Snapshot) {
			s.saveAssistantMessage(chatID, snap, requestID)
		},
	})

	release := s.registry.Register(chatID, sess)
	if err := sess.Start(context.Background()); err != nil {
		release()
		return nil, nil, err
	}

	fiberlog.Infof("[%s] Chat %s streaming with model %s", requestID, chatID, model.APIIdentifier)
	return sess, release, nil
}

// StartFileReview starts a session asking the model about an uploaded file.
// Nothing is persisted for file reviews.
func (s *Service) StartFileReview(
	ctx context.Context,
	userID, fileName, contentType string,
	data []byte,
	model models.ChatModel,
	requestID string,
) (*session.Session, error) {
	system, err := s.systemPrompt(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}

	block, err := s.attachments.Convert(ctx, models.Attachment{
		Name:        fileName,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}, requestID)
	if err != nil {
		return nil, models.NewValidationError("failed to process file", err)
	}

	params := s.messages.BuildParams(model.APIIdentifier, system, []anthropic.MessageParam{
		anthropic.NewUserMessage(block, anthropic.NewTextBlock(fmt.Sprintf(prompts.FileReview, fileName))),
	})

	sess := session.New(s.messages.Opener(params, requestID), session.Options{
		RequestID:   requestID,
		IdleTimeout: s.idleTimeout,
	})
	if err := sess.Start(context.Background()); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ensureChat(ctx context.Context, userID, chatID, firstMessage, requestID string) error {
	_, err := s.history.GetChat(ctx, userID, chatID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, history.ErrChatNotFound) {
		return models.NewInternalError("failed to load chat", err)
	}

	// The id may belong to another user's chat
	exists, err := s.history.ChatExists(ctx, chatID)
	if err != nil {
		return models.NewInternalError("failed to load chat", err)
	}
	if exists {
		return models.NewNotFoundError("chat")
	}

	title := s.messages.GenerateTitle(ctx, firstMessage, requestID)
	err = s.history.SaveChat(ctx, &models.Chat{ID: chatID, UserID: userID, Title: title})
	if errors.Is(err, history.ErrChatExists) {
		// Created concurrently; only its owner may continue
		if _, err := s.history.GetChat(ctx, userID, chatID); err != nil {
			if errors.Is(err, history.ErrChatNotFound) {
				return models.NewNotFoundError("chat")
			}
			return models.NewInternalError("failed to load chat", err)
		}
		return nil
	}
	if err != nil {
		return models.NewInternalError("failed to save chat", err)
	}
	fiberlog.Debugf("[%s] Created chat %s titled %q", requestID, chatID, title)
	return nil
}

func (s *Service) saveUserMessage(ctx context.Context, chatID string, msg models.ChatMessage) error {
	var attachments string
	if len(msg.Attachments) > 0 {
		// Inline data is not kept; the url is enough to replay the turn
		stored := make([]models.Attachment, len(msg.Attachments))
		for i, att := range msg.Attachments {
			att.Data = ""
			stored[i] = att
		}
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		attachments = string(raw)
	}

	return s.history.SaveMessages(ctx, models.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Role:        "user",
		Content:     msg.Content,
		Attachments: attachments,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *Service) saveAssistantMessage(chatID string, snap contracts.Snapshot, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.history.SaveMessages(ctx, models.Message{
		ID:        snap.ID,
		ChatID:    chatID,
		Role:      snap.Role,
		Content:   snap.Content,
		CreatedAt: snap.CreatedAt.UTC(),
	})
	if err != nil {
		fiberlog.Errorf("[%s] Failed to persist assistant message %s: %v", requestID, snap.ID, err)
	}
}

func (s *Service) systemPrompt(ctx context.Context, userID, requestID string) (string, error) {
	raw, err := s.history.GetMedicalHistory(ctx, userID)
	if err != nil {
		return "", models.NewInternalError("failed to load medical history", err)
	}
	if _, ok := prompts.FormatMedicalHistory(raw); raw != "" && !ok {
		fiberlog.Warnf("[%s] Ignoring unreadable medical history for user %s", requestID, userID)
	}
	return prompts.System(raw), nil
}
