package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

const (
	contactMessageIDPrefix  = "msg_"
	maxContactMessageLength = 4000
)

var (
	// ErrContactInvalidInput indicates the caller supplied invalid input parameters.
	ErrContactInvalidInput = errors.New("contact: invalid input")
	// ErrContactUnavailable indicates contact dependencies are currently unavailable.
	ErrContactUnavailable = errors.New("contact: unavailable")
)

// ContactServiceDeps wires the dependencies required by the contact service.
type ContactServiceDeps struct {
	Messages    repositories.MessageRepository
	IDGenerator func() string
	Clock       func() time.Time
	Logger      Logger
}

type contactService struct {
	messages repositories.MessageRepository
	idGen    func() string
	now      func() time.Time
	logger   Logger
	policy   *bluemonday.Policy
}

// NewContactService constructs a ContactService validating required dependencies.
func NewContactService(deps ContactServiceDeps) (ContactService, error) {
	if deps.Messages == nil {
		return nil, errors.New("contact service: message repository is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return contactMessageIDPrefix + ulid.Make().String()
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contactService{
		messages: deps.Messages,
		idGen:    idGen,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}, nil
}

// Submit validates, sanitises, and stores a storefront enquiry.
func (s *contactService) Submit(ctx context.Context, cmd SubmitMessageCommand) (domain.ContactMessage, error) {
	if s == nil || s.messages == nil {
		return domain.ContactMessage{}, ErrContactUnavailable
	}

	message := domain.ContactMessage{
		ID:        s.idGen(),
		Name:      s.sanitise(cmd.Name),
		Email:     strings.ToLower(s.sanitise(cmd.Email)),
		Phone:     s.sanitise(cmd.Phone),
		Subject:   s.sanitise(cmd.Subject),
		Message:   s.sanitise(cmd.Message),
		CreatedAt: s.now(),
	}

	switch {
	case message.Name == "":
		return domain.ContactMessage{}, fmt.Errorf("%w: name is required", ErrContactInvalidInput)
	case message.Email == "" || !strings.Contains(message.Email, "@"):
		return domain.ContactMessage{}, fmt.Errorf("%w: a valid email is required", ErrContactInvalidInput)
	case message.Message == "":
		return domain.ContactMessage{}, fmt.Errorf("%w: message body is required", ErrContactInvalidInput)
	case len(message.Message) > maxContactMessageLength:
		return domain.ContactMessage{}, fmt.Errorf("%w: message body is too long", ErrContactInvalidInput)
	}

	if err := s.messages.Insert(ctx, message); err != nil {
		return domain.ContactMessage{}, fmt.Errorf("%w: %v", ErrContactUnavailable, err)
	}

	s.logger(ctx, "contact.message_received", map[string]any{"messageId": message.ID})
	return message, nil
}

// List returns stored enquiries, newest first.
func (s *contactService) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ContactMessage], error) {
	if s == nil || s.messages == nil {
		return domain.CursorPage[domain.ContactMessage]{}, ErrContactUnavailable
	}
	page, err := s.messages.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[domain.ContactMessage]{}, fmt.Errorf("%w: %v", ErrContactUnavailable, err)
	}
	return page, nil
}

// MarkRead flags an enquiry as handled.
func (s *contactService) MarkRead(ctx context.Context, messageID string) error {
	if s == nil || s.messages == nil {
		return ErrContactUnavailable
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("%w: message id is required", ErrContactInvalidInput)
	}
	if err := s.messages.MarkRead(ctx, messageID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return fmt.Errorf("%w: message %s not found", ErrContactInvalidInput, messageID)
		}
		return fmt.Errorf("%w: %v", ErrContactUnavailable, err)
	}
	return nil
}

func (s *contactService) sanitise(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(value))
}
