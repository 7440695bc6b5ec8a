package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// List endpoints accept ?pageSize, ?pageToken, ?orderBy ("total desc"), and
// ?filter ("status==paid", "total>=50000"). Each handler declares which fields
// may be ordered and filtered on; anything else is rejected before it can
// reach a Firestore query.

const (
	// DefaultPageSize applies when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps pageSize so a listing can never scan unbounded.
	DefaultMaxPageSize = 100

	maxFilterValueLength = 512
)

// Operator is a filter comparison accepted via the query string. The set
// matches what the order listings can translate to Firestore predicates.
type Operator string

const (
	OperatorEqual        Operator = "=="
	OperatorGreaterEqual Operator = ">="
	OperatorLessEqual    Operator = "<="
)

// Longest first, so ">=" is found before a bare "=" could be.
var operatorsByLength = []Operator{OperatorGreaterEqual, OperatorLessEqual, OperatorEqual}

// Order is a single order-by clause.
type Order struct {
	Field string
	Desc  bool
}

// Filter is a single comparison parsed from a ?filter value.
type Filter struct {
	Field string
	Op    Operator
	Value string
}

// Cursor carries the Firestore query position serialized into page tokens.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// Params is the normalised paging, ordering, and filtering input of one request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Orders    []Order
	Filters   []Filter
}

// Options declares what a handler permits.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// AllowedOrderFields lists the fields ?orderBy may name. Empty means
	// ordering is not supported on this endpoint.
	AllowedOrderFields []string
	// AllowedFilterFields maps filterable fields to their permitted
	// operators. An empty operator list permits all of them.
	AllowedFilterFields map[string][]Operator
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidOrderBy   = errors.New("pagination: invalid orderBy")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses the paging query parameters from r.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse normalises the supplied query values against opts.
func Parse(values url.Values, opts Options) (Params, error) {
	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if token := strings.TrimSpace(values.Get("pageToken")); token != "" {
		cursor, err := DecodeToken(token)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = token
		params.Cursor = cursor
	}

	if params.Orders, err = parseOrders(values["orderBy"], opts.AllowedOrderFields); err != nil {
		return Params{}, err
	}
	if params.Filters, err = parseFilters(values["filter"], opts.AllowedFilterFields); err != nil {
		return Params{}, err
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	fallback := opts.DefaultPageSize
	if fallback <= 0 {
		fallback = DefaultPageSize
	}
	if fallback > maxSize {
		fallback = maxSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	return min(size, maxSize), nil
}

func parseOrders(values []string, allowed []string) ([]Order, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: ordering not supported on this endpoint", ErrInvalidOrderBy)
	}

	permitted := make(map[string]struct{}, len(allowed))
	for _, field := range allowed {
		if field != "" {
			permitted[field] = struct{}{}
		}
	}

	var orders []Order
	seen := make(map[string]struct{})
	for _, raw := range values {
		for _, clause := range strings.Split(raw, ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			order, err := parseOrderClause(clause)
			if err != nil {
				return nil, err
			}
			if _, ok := permitted[order.Field]; !ok {
				return nil, fmt.Errorf("%w: cannot order by %q", ErrInvalidOrderBy, order.Field)
			}
			if _, dup := seen[order.Field]; dup {
				continue
			}
			seen[order.Field] = struct{}{}
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// parseOrderClause accepts "field", "field asc", "field desc", and the
// colon-separated equivalents.
func parseOrderClause(clause string) (Order, error) {
	clause = strings.ReplaceAll(clause, ":", " ")
	parts := strings.Fields(clause)
	switch len(parts) {
	case 1, 2:
	default:
		return Order{}, fmt.Errorf("%w: malformed clause %q", ErrInvalidOrderBy, clause)
	}

	field := parts[0]
	if !validFieldName(field) {
		return Order{}, fmt.Errorf("%w: invalid field %q", ErrInvalidOrderBy, field)
	}

	order := Order{Field: field}
	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
		case "desc":
			order.Desc = true
		default:
			return Order{}, fmt.Errorf("%w: invalid direction %q", ErrInvalidOrderBy, parts[1])
		}
	}
	return order, nil
}

func parseFilters(values []string, allowed map[string][]Operator) ([]Filter, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: filtering not supported on this endpoint", ErrInvalidFilter)
	}

	var filters []Filter
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		filter, err := parseFilterClause(raw)
		if err != nil {
			return nil, err
		}
		ops, ok := allowed[filter.Field]
		if !ok {
			return nil, fmt.Errorf("%w: cannot filter by %q", ErrInvalidFilter, filter.Field)
		}
		if len(ops) > 0 && !operatorAllowed(filter.Op, ops) {
			return nil, fmt.Errorf("%w: operator %q not allowed for %q", ErrInvalidFilter, filter.Op, filter.Field)
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

func parseFilterClause(raw string) (Filter, error) {
	for _, op := range operatorsByLength {
		idx := strings.Index(raw, string(op))
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(raw[:idx])
		value := cleanFilterValue(raw[idx+len(op):])
		if !validFieldName(field) {
			return Filter{}, fmt.Errorf("%w: invalid field %q", ErrInvalidFilter, field)
		}
		if value == "" {
			return Filter{}, fmt.Errorf("%w: empty value for %q", ErrInvalidFilter, field)
		}
		return Filter{Field: field, Op: op, Value: value}, nil
	}
	return Filter{}, fmt.Errorf("%w: missing operator in %q", ErrInvalidFilter, raw)
}

func operatorAllowed(op Operator, permitted []Operator) bool {
	for _, candidate := range permitted {
		if op == candidate {
			return true
		}
	}
	return false
}

func cleanFilterValue(value string) string {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > maxFilterValueLength {
		value = value[:maxFilterValueLength]
	}
	return value
}

func validFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
