package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebsearch_FormatsTopHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"title":"Go 泛型介绍","snippet":"类型参数入门","url":"https://a.example"},
			{"title":"Go 1.22 发布","snippet":"版本说明","url":"https://b.example"}]}`)
	}))
	defer srv.Close()

	ws := NewWebsearch(srv.URL, "")
	got, err := ws.Run(context.Background(), "golang 泛型")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := "搜索结果（查询: golang 泛型）:\n\n" +
		"1. Go 泛型介绍\n   类型参数入门\n   https://a.example\n\n" +
		"2. Go 1.22 发布\n   版本说明\n   https://b.example"
	if got != want {
		t.Errorf("Run() = %q, want %q", got, want)
	}
}

func TestWebsearch_SendsQueryAndAuth(t *testing.T) {
	var gotQuery, gotCount, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	ws := NewWebsearch(srv.URL, "sk-test")
	got, err := ws.Run(context.Background(), "  明天天气  ")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if gotQuery != "明天天气" {
		t.Errorf("q = %q, want trimmed query", gotQuery)
	}
	if gotCount != "5" {
		t.Errorf("count = %q, want %q", gotCount, "5")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	// Пустая выдача сохраняет заголовок дайджеста.
	if got != "搜索结果（查询: 明天天气）:\n\n" {
		t.Errorf("Run() = %q, want header with empty digest", got)
	}
}

func TestWebsearch_LimitsHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits := make([]searchHit, 7)
		for i := range hits {
			hits[i] = searchHit{Title: fmt.Sprintf("t%d", i+1), Snippet: "s", URL: "u"}
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Results: hits})
	}))
	defer srv.Close()

	ws := NewWebsearch(srv.URL, "")
	got, err := ws.Run(context.Background(), "query")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(got, "5. t5") {
		t.Error("Run() dropped the fifth hit")
	}
	if strings.Contains(got, "6. t6") {
		t.Error("Run() kept more than five hits")
	}
}

func TestWebsearch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebsearch(srv.URL, "")
	if _, err := ws.Run(context.Background(), "query"); err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Errorf("Run() error = %v, want status 502", err)
	}
}

func TestWebsearch_EmptyQuery(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
	}))
	defer srv.Close()

	ws := NewWebsearch(srv.URL, "")
	if _, err := ws.Run(context.Background(), "   "); err == nil {
		t.Error("Run() error = nil, want error on empty query")
	}
	if hit {
		t.Error("endpoint was called for an empty query")
	}
}

func TestWebsearch_CanHandleEverything(t *testing.T) {
	if !NewWebsearch("https://search.example", "").CanHandle("任何问题") {
		t.Error("CanHandle() = false, want the fallback tool to claim everything")
	}
}
