package firestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/makhaana-store/api/internal/platform/pagination"
)

// timestampCursor positions a query after a (createdAt, documentID) pair, the
// ordering every paginated listing in this package shares.
type timestampCursor struct {
	at time.Time
	id string
}

func encodeTimestampCursor(at time.Time, id string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{at.UTC().Format(time.RFC3339Nano), id},
	})
}

func decodeTimestampCursor(token string) (*timestampCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawAt, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: timestamp missing", pagination.ErrInvalidPageToken)
	}
	at, err := time.Parse(time.RFC3339Nano, rawAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: document id missing", pagination.ErrInvalidPageToken)
	}
	return &timestampCursor{at: at, id: id}, nil
}

// amountCursor positions a query after a (total, documentID) pair, used when
// an admin listing is ordered by order total.
type amountCursor struct {
	total int64
	id    string
}

func encodeAmountCursor(total int64, id string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{total, id},
	})
}

func decodeAmountCursor(token string) (*amountCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	// JSON numbers decode as float64.
	rawTotal, ok := cursor.StartAfter[0].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: total missing", pagination.ErrInvalidPageToken)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: document id missing", pagination.ErrInvalidPageToken)
	}
	return &amountCursor{total: int64(rawTotal), id: id}, nil
}
