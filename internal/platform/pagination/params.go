package pagination

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Params bundles the pagination values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
}

// ParseRequest extracts pageSize and pageToken from the query string.
func ParseRequest(r *http.Request) (Params, error) {
	params := Params{PageSize: DefaultPageSize}
	if r == nil {
		return params, nil
	}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("pagination: pageSize must be a positive integer")
		}
		params.PageSize = size
	}
	params.PageSize = ClampPageSize(params.PageSize)
	params.PageToken = strings.TrimSpace(query.Get("pageToken"))
	if _, err := DecodeToken(params.PageToken); err != nil {
		return Params{}, err
	}
	return params, nil
}

// ClampPageSize applies the default and maximum page size.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > DefaultMaxPageSize {
		return DefaultMaxPageSize
	}
	return size
}
