package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crmboard/internal/models"
	"crmboard/internal/pipeline"
)

func TestGetPipelines(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "plain", body: `{"data":[{"id":1,"name":"Real Estate","stages":[{"id":11,"name":"Lead"}]}],"count":1}`},
		{name: "double wrapped", body: `{"success":true,"data":{"data":[{"id":1,"name":"Real Estate","stages":[{"id":11,"name":"Lead"}]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/amo-crm/pipelines" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("Authorization = %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL+"/", WithToken("secret"))
			got, err := c.GetPipelines(context.Background())
			if err != nil {
				t.Fatalf("GetPipelines() error = %v", err)
			}
			if len(got) != 1 || *got[0].Name != "Real Estate" || len(got[0].Stages) != 1 {
				t.Errorf("GetPipelines() = %+v", got)
			}
		})
	}
}

func TestListLeadsSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("pipelineId") != "7" || q.Get("stageId") != "42" || q.Get("page") != "1" || q.Get("limit") != "100" {
			t.Errorf("query = %v", q)
		}
		if q.Has("status") {
			t.Errorf("status sent with stageId")
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"a","status":"NEW","statusName":"Viewing"}],"total":1,"page":1,"limit":100,"totalPages":1}`))
	}))
	defer srv.Close()

	f := pipeline.FilterState{}.SelectPipeline(7)
	stage := 42
	f = f.SelectStage(&stage, "")

	page, err := New(srv.URL).ListLeads(context.Background(), pipeline.BuildLeadQuery(f, 1, 100))
	if err != nil {
		t.Fatalf("ListLeads() error = %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].StatusName != "Viewing" {
		t.Errorf("ListLeads() = %+v", page)
	}
}

func TestListLeadsDoubleWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"data":[{"id":"a","status":"CLOSED"}],"total":5,"page":2,"limit":1,"totalPages":5}}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).ListLeads(context.Background(), pipeline.LeadQuery{Page: 2, Limit: 1})
	if err != nil {
		t.Fatalf("ListLeads() error = %v", err)
	}
	if page.Total != 5 || page.Page != 2 || page.Data[0].Status != models.LeadStatusClosed {
		t.Errorf("ListLeads() = %+v", page)
	}
}

func TestRetryOnceOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryDelay(time.Millisecond))
	if _, err := c.GetPipelines(context.Background()); err != nil {
		t.Fatalf("GetPipelines() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestRetryGivesUpAfterOneRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithRetryDelay(time.Millisecond)).ListLeads(context.Background(), pipeline.LeadQuery{Page: 1, Limit: 1})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want APIError 503", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithRetryDelay(time.Millisecond)).GetPipelines(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want APIError 401", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRetryWaitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(srv.URL, WithRetryDelay(time.Hour)).GetPipelines(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry wait ignored the context")
	}
}

func TestWithTokenCopies(t *testing.T) {
	base := New("http://example", WithToken("config"))
	user := base.WithToken("user")
	if base.token != "config" || user.token != "user" {
		t.Errorf("tokens = %q/%q", base.token, user.token)
	}
	if same := base.WithToken(""); same.token != "config" {
		t.Errorf("empty token replaced config token: %q", same.token)
	}
}
