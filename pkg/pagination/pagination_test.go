package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"_count=25&_offset=5", 25, 5},
		{"_count=25&limit=50&_offset=5&offset=10", 25, 5},
		{"_count=0&limit=7", 7, 0},
		{"limit=500", MaxLimit, 0},
		{"limit=abc&offset=-5", DefaultLimit, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), httptest.NewRecorder())
			p := FromContext(c)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b", "c"}
	r := NewResponse(data, 10, 3, 0)

	if r.Total != 10 {
		t.Errorf("expected total 10, got %d", r.Total)
	}
	if !r.HasMore {
		t.Error("expected has_more to be true when offset+limit < total")
	}

	r2 := NewResponse(data, 3, 3, 0)
	if r2.HasMore {
		t.Error("expected has_more to be false when offset+limit >= total")
	}
}

func TestParams_Window(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		total    int
		hasNext  bool
		hasPrev  bool
		next     int
		previous int
	}{
		{"first page", Params{Limit: 10, Offset: 0}, 25, true, false, 10, 0},
		{"middle", Params{Limit: 10, Offset: 10}, 25, true, true, 20, 0},
		{"last partial page", Params{Limit: 10, Offset: 20}, 25, false, true, 30, 10},
		{"exact end", Params{Limit: 10, Offset: 15}, 25, false, true, 25, 5},
		{"past end", Params{Limit: 10, Offset: 30}, 25, false, true, 40, 20},
		{"short offset", Params{Limit: 10, Offset: 5}, 25, true, true, 15, 0},
		{"empty", Params{Limit: 10, Offset: 0}, 0, false, false, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			if got := p.HasNext(tt.total); got != tt.hasNext {
				t.Errorf("HasNext = %v, want %v", got, tt.hasNext)
			}
			if got := p.HasPrevious(); got != tt.hasPrev {
				t.Errorf("HasPrevious = %v, want %v", got, tt.hasPrev)
			}
			if got := p.NextOffset(); got != tt.next {
				t.Errorf("NextOffset = %d, want %d", got, tt.next)
			}
			if got := p.PreviousOffset(); got != tt.previous {
				t.Errorf("PreviousOffset = %d, want %d", got, tt.previous)
			}
		})
	}
}

func TestResponse_WithLinks(t *testing.T) {
	tests := []struct {
		name                 string
		total, limit, offset int
		want                 Links
	}{
		{"first page", 50, 20, 0, Links{
			Self: "/api/v1/codes/icd?limit=20&offset=0",
			Next: "/api/v1/codes/icd?limit=20&offset=20",
		}},
		{"middle page", 50, 20, 20, Links{
			Self:     "/api/v1/codes/icd?limit=20&offset=20",
			Next:     "/api/v1/codes/icd?limit=20&offset=40",
			Previous: "/api/v1/codes/icd?limit=20&offset=0",
		}},
		{"last page", 50, 20, 40, Links{
			Self:     "/api/v1/codes/icd?limit=20&offset=40",
			Previous: "/api/v1/codes/icd?limit=20&offset=20",
		}},
		{"short offset", 50, 20, 5, Links{
			Self:     "/api/v1/codes/icd?limit=20&offset=5",
			Next:     "/api/v1/codes/icd?limit=20&offset=25",
			Previous: "/api/v1/codes/icd?limit=20&offset=0",
		}},
		{"no results", 0, 20, 0, Links{Self: "/api/v1/codes/icd?limit=20&offset=0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponse(nil, tt.total, tt.limit, tt.offset).WithLinks("/api/v1/codes/icd")
			if *r.Links != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, *r.Links)
			}
		})
	}
}

func TestResponse_LinksOmittedByDefault(t *testing.T) {
	data, _ := json.Marshal(NewResponse([]string{}, 0, 20, 0))
	if strings.Contains(string(data), "links") {
		t.Errorf("expected no links field, got %s", data)
	}
}
