package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/makhaana-store/api/internal/domain"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
)

const (
	messagesCollection     = "contactMessages"
	defaultMessagePageSize = 25
	maxMessagePageSize     = 100
)

type messageDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone,omitempty"`
	Subject   string    `firestore:"subject,omitempty"`
	Message   string    `firestore:"message"`
	Read      bool      `firestore:"read"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d messageDocument) toDomain(id string) domain.ContactMessage {
	return domain.ContactMessage{
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Subject:   d.Subject,
		Message:   d.Message,
		Read:      d.Read,
		CreatedAt: d.CreatedAt,
	}
}

// MessageRepository stores customer contact messages.
type MessageRepository struct {
	provider *pfirestore.Provider
	messages *pfirestore.Collection[messageDocument]
}

// NewMessageRepository constructs a Firestore backed message repository.
func NewMessageRepository(provider *pfirestore.Provider) (*MessageRepository, error) {
	if provider == nil {
		return nil, errors.New("message repository requires firestore provider")
	}
	messages := pfirestore.NewCollection[messageDocument](provider, messagesCollection)
	return &MessageRepository{provider: provider, messages: messages}, nil
}

// Insert stores a new contact message under the caller-provided id.
func (r *MessageRepository) Insert(ctx context.Context, message domain.ContactMessage) error {
	if r == nil || r.messages == nil {
		return errors.New("message repository not initialised")
	}
	id := strings.TrimSpace(message.ID)
	if id == "" {
		return errors.New("message insert: id is required")
	}
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.messages.Set(ctx, id, messageDocument{
		Name:      message.Name,
		Email:     message.Email,
		Phone:     message.Phone,
		Subject:   message.Subject,
		Message:   message.Message,
		Read:      message.Read,
		CreatedAt: createdAt,
	})
	return err
}

// List returns contact messages, newest first.
func (r *MessageRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ContactMessage], error) {
	if r == nil || r.messages == nil {
		return domain.CursorPage[domain.ContactMessage]{}, errors.New("message repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultMessagePageSize
	}
	if pageSize > maxMessagePageSize {
		pageSize = maxMessagePageSize
	}

	startAfter, err := decodeTimestampCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ContactMessage]{}, err
	}

	docs, err := r.messages.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != nil {
			q = q.StartAfter(startAfter.at, startAfter.id)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ContactMessage]{}, err
	}

	page := domain.CursorPage[domain.ContactMessage]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			if token, err := encodeTimestampCursor(last.Data.CreatedAt, last.ID); err == nil {
				page.NextPageToken = token
			}
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// MarkRead flags a message as handled.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID string) error {
	if r == nil || r.messages == nil {
		return errors.New("message repository not initialised")
	}
	_, err := r.messages.Update(ctx, strings.TrimSpace(messageID), []firestore.Update{
		{Path: "read", Value: true},
	})
	return err
}
