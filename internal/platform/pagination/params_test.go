package pagination

import (
	"errors"
	"net/url"
	"testing"
)

var orderListOptions = Options{
	DefaultPageSize:    25,
	MaxPageSize:        100,
	AllowedOrderFields: []string{"createdAt", "total"},
	AllowedFilterFields: map[string][]Operator{
		"status": {OperatorEqual},
		"total":  {OperatorGreaterEqual, OperatorLessEqual},
	},
}

func TestParseDefaultsPageSize(t *testing.T) {
	params, err := Parse(url.Values{}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != 25 {
		t.Fatalf("expected default page size 25, got %d", params.PageSize)
	}
	if len(params.Orders) != 0 || len(params.Filters) != 0 {
		t.Fatalf("expected no orders or filters, got %+v", params)
	}
}

func TestParseCapsPageSize(t *testing.T) {
	params, err := Parse(url.Values{"pageSize": {"500"}}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("expected page size capped at 100, got %d", params.PageSize)
	}
}

func TestParseRejectsBadPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		_, err := Parse(url.Values{"pageSize": {raw}}, orderListOptions)
		if !errors.Is(err, ErrInvalidPageSize) {
			t.Errorf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseOrderBy(t *testing.T) {
	tests := []struct {
		name    string
		orderBy string
		want    []Order
		wantErr error
	}{
		{name: "bare field", orderBy: "createdAt", want: []Order{{Field: "createdAt"}}},
		{name: "descending", orderBy: "total desc", want: []Order{{Field: "total", Desc: true}}},
		{name: "colon form", orderBy: "total:desc", want: []Order{{Field: "total", Desc: true}}},
		{name: "multiple clauses", orderBy: "total desc,createdAt asc", want: []Order{{Field: "total", Desc: true}, {Field: "createdAt"}}},
		{name: "unknown field", orderBy: "email desc", wantErr: ErrInvalidOrderBy},
		{name: "bad direction", orderBy: "total sideways", wantErr: ErrInvalidOrderBy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := Parse(url.Values{"orderBy": {tt.orderBy}}, orderListOptions)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(params.Orders) != len(tt.want) {
				t.Fatalf("expected %d orders, got %+v", len(tt.want), params.Orders)
			}
			for i, want := range tt.want {
				if params.Orders[i] != want {
					t.Errorf("order %d: got %+v, want %+v", i, params.Orders[i], want)
				}
			}
		})
	}
}

func TestParseOrderByDeduplicatesFields(t *testing.T) {
	params, err := Parse(url.Values{"orderBy": {"total desc,total asc"}}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(params.Orders) != 1 || !params.Orders[0].Desc {
		t.Fatalf("expected the first total clause to win, got %+v", params.Orders)
	}
}

func TestParseOrderByRejectedWhenNotAllowed(t *testing.T) {
	_, err := Parse(url.Values{"orderBy": {"createdAt"}}, Options{})
	if !errors.Is(err, ErrInvalidOrderBy) {
		t.Fatalf("expected ErrInvalidOrderBy, got %v", err)
	}
}

func TestParseFilters(t *testing.T) {
	params, err := Parse(url.Values{"filter": {"status==paid", "total>=50000", "total<=100000"}}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Filter{
		{Field: "status", Op: OperatorEqual, Value: "paid"},
		{Field: "total", Op: OperatorGreaterEqual, Value: "50000"},
		{Field: "total", Op: OperatorLessEqual, Value: "100000"},
	}
	if len(params.Filters) != len(want) {
		t.Fatalf("expected %d filters, got %+v", len(want), params.Filters)
	}
	for i, filter := range want {
		if params.Filters[i] != filter {
			t.Errorf("filter %d: got %+v, want %+v", i, params.Filters[i], filter)
		}
	}
}

func TestParseFilterRejectsDisallowedOperator(t *testing.T) {
	_, err := Parse(url.Values{"filter": {"status>=paid"}}, orderListOptions)
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestParseFilterRejectsUnknownField(t *testing.T) {
	_, err := Parse(url.Values{"filter": {"email==priya@example.in"}}, orderListOptions)
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestParseFilterRejectsMissingOperator(t *testing.T) {
	_, err := Parse(url.Values{"filter": {"status paid"}}, orderListOptions)
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestParseFilterStripsQuotes(t *testing.T) {
	params, err := Parse(url.Values{"filter": {`status=="shipped"`}}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Filters[0].Value != "shipped" {
		t.Fatalf("expected quotes stripped, got %q", params.Filters[0].Value)
	}
}

func TestParseRoundTripsPageToken(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-08-01T10:00:00Z", "MKH-1042"}})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	params, err := Parse(url.Values{"pageToken": {token}}, orderListOptions)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected token preserved, got %q", params.PageToken)
	}
	if len(params.Cursor.StartAfter) != 2 || params.Cursor.StartAfter[1] != "MKH-1042" {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}
}

func TestParseRejectsGarbagePageToken(t *testing.T) {
	_, err := Parse(url.Values{"pageToken": {"!!not-base64!!"}}, orderListOptions)
	if !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}
