// Package pagination reads limit/offset query parameters and shapes list
// responses for the REST API.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a page window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads the page window from the request. The FHIR names
// _count and _offset win over limit and offset when both are present.
func FromContext(c echo.Context) Params {
	limit := firstPositive(c, "_count", "limit")
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Params{Limit: limit, Offset: firstPositive(c, "_offset", "offset")}
}

// firstPositive returns the first named query value that parses to a
// positive integer, or 0.
func firstPositive(c echo.Context, names ...string) int {
	for _, name := range names {
		if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// HasNext reports whether results remain after this page.
func (p Params) HasNext(total int) bool { return p.Offset+p.Limit < total }

// HasPrevious reports whether this page is not the first.
func (p Params) HasPrevious() bool { return p.Offset > 0 }

func (p Params) NextOffset() int { return p.Offset + p.Limit }

// PreviousOffset steps back one page, stopping at zero.
func (p Params) PreviousOffset() int {
	if p.Offset < p.Limit {
		return 0
	}
	return p.Offset - p.Limit
}

func (p Params) url(basePath string, offset int) string {
	return fmt.Sprintf("%s?limit=%d&offset=%d", basePath, p.Limit, offset)
}

// Response is the envelope for paginated list endpoints.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   *Links      `json:"links,omitempty"`
}

// Links point at the neighbouring pages of a Response.
type Links struct {
	Self     string `json:"self"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks fills Links for a list served at basePath.
func (r *Response) WithLinks(basePath string) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	r.Links = &Links{Self: p.url(basePath, p.Offset)}
	if p.HasNext(r.Total) {
		r.Links.Next = p.url(basePath, p.NextOffset())
	}
	if p.HasPrevious() {
		r.Links.Previous = p.url(basePath, p.PreviousOffset())
	}
	return r
}
