package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmboard/internal/apiclient"
	"crmboard/internal/authz"
	"crmboard/internal/handlers"
	"crmboard/internal/middleware"
	"crmboard/internal/models"
	"crmboard/internal/realtime"
	"crmboard/internal/services"
)

var secret = []byte("routes-test")

type memLeads struct {
	mu         sync.Mutex
	leads      []models.Lead
	lastFilter models.LeadFilter
	lastLimit  int
}

func (m *memLeads) match(f models.LeadFilter) []models.Lead {
	out := []models.Lead{}
	for _, l := range m.leads {
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		if f.PipelineID != nil && (l.PipelineID == nil || *l.PipelineID != *f.PipelineID) {
			continue
		}
		if f.StageID != nil && (l.StageID == nil || *l.StageID != *f.StageID) {
			continue
		}
		if f.ResponsibleUserID != nil && (l.ResponsibleUserID == nil || *l.ResponsibleUserID != *f.ResponsibleUserID) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (m *memLeads) List(ctx context.Context, f models.LeadFilter, limit, offset int) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter, m.lastLimit = f, limit
	all := m.match(f)
	if offset >= len(all) {
		return []models.Lead{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memLeads) Count(ctx context.Context, f models.LeadFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.match(f)), nil
}

func (m *memLeads) last() (models.LeadFilter, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFilter, m.lastLimit
}

type memPipelines struct{}

func (memPipelines) List(ctx context.Context) ([]models.Pipeline, error) {
	return []models.Pipeline{
		{ID: 1, Name: "Real Estate", Stages: []models.Stage{
			{ID: 11, PipelineID: 1, Name: "Lead"},
			{ID: 12, PipelineID: 1, Name: "Viewing"},
		}},
		{ID: 2, Name: "Partners", Stages: []models.Stage{
			{ID: 21, PipelineID: 2, Name: "Intro", MappedStatus: models.LeadStatusInProgress},
		}},
	}, nil
}

func intp(v int) *int { return &v }

type testEnv struct {
	server *httptest.Server
	boards *services.BoardService
	leads  *memLeads
}

// newTestEnv поднимает весь сервис: доска ходит через apiclient в /leads этого же сервера.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	price := 1000.0
	leads := &memLeads{leads: []models.Lead{
		{ID: "a", Status: models.LeadStatusNew, PipelineID: intp(1), StageID: intp(11), ResponsibleUserID: intp(7), Price: &price},
		{ID: "b", Status: models.LeadStatusInProgress, PipelineID: intp(1), StageID: intp(12), ResponsibleUserID: intp(8)},
		{ID: "c", Status: models.LeadStatusInProgress, PipelineID: intp(2), StageID: intp(21), ResponsibleUserID: intp(7)},
	}}

	env := &testEnv{leads: leads}
	hub := realtime.NewBoardHub()
	env.boards = services.NewBoardService(func(token string) services.LeadSource {
		return apiclient.New(env.server.URL, apiclient.WithRetryDelay(0)).WithToken(token)
	}, services.BoardOptions{
		AllowedPipelines: []string{"Real Estate", "Partners"},
		FetchTimeout:     5 * time.Second,
	}, hub)

	r := gin.New()
	SetupRoutes(r, secret,
		handlers.NewBoardHandler(env.boards, hub),
		handlers.NewLeadHandler(services.NewLeadService(leads, memPipelines{})),
	)
	env.server = httptest.NewServer(r)
	t.Cleanup(env.server.Close)
	return env
}

func token(t *testing.T, userID, roleID int) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		RoleID: roleID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type snapshot struct {
	ID     string             `json:"id"`
	State  string             `json:"state"`
	Filter models.FilterState `json:"filter"`
	Leads  []models.Lead      `json:"leads"`
	Total  int                `json:"total"`
	Stages []models.Stage     `json:"visibleStages"`
	Pos    string             `json:"position"`
}

func (e *testEnv) waitBoard(t *testing.T, id string, userID int) {
	t.Helper()
	b, err := e.boards.Get(id, userID)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	b.Wait()
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	if code := env.do(t, http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
	if code := env.do(t, http.MethodPost, "/boards", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("boards without token = %d", code)
	}
}

func TestLeadsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	admin := token(t, 1, authz.RoleAdmin)
	sales := token(t, 7, authz.RoleSales)

	var page models.LeadsPage
	if code := env.do(t, http.MethodGet, "/leads?status=in-progress", admin, nil, &page); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if page.Total != 2 || page.TotalPages != 1 || page.Limit != 100 {
		t.Errorf("page = %+v", page)
	}

	if code := env.do(t, http.MethodGet, "/leads?status=bogus", admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad status = %d, want 400", code)
	}
	if code := env.do(t, http.MethodGet, "/leads?pipelineId=x", admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad pipelineId = %d, want 400", code)
	}

	env.do(t, http.MethodGet, "/leads?limit=5000", admin, nil, &page)
	if _, limit := env.leads.last(); limit != 1000 {
		t.Errorf("limit = %d, want capped 1000", limit)
	}

	page = models.LeadsPage{}
	env.do(t, http.MethodGet, "/leads", sales, nil, &page)
	f, _ := env.leads.last()
	if f.ResponsibleUserID == nil || *f.ResponsibleUserID != 7 {
		t.Errorf("sales filter = %+v", f)
	}
	if page.Total != 2 {
		t.Errorf("sales total = %d, want 2", page.Total)
	}
}

func TestPipelinesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	var body struct {
		Data  []models.Pipeline `json:"data"`
		Count int               `json:"count"`
	}
	if code := env.do(t, http.MethodGet, "/amo-crm/pipelines", token(t, 1, authz.RoleAdmin), nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Count != 2 || len(body.Data[0].Stages) != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestBoardLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, authz.RoleAdmin)

	var snap snapshot
	if code := env.do(t, http.MethodPost, "/boards", tok, nil, &snap); code != http.StatusCreated {
		t.Fatalf("open = %d", code)
	}
	env.waitBoard(t, snap.ID, 1)

	env.do(t, http.MethodGet, "/boards/"+snap.ID, tok, nil, &snap)
	if snap.State != "ready" || snap.Total != 3 || snap.Pos != "all" {
		t.Errorf("after open = %+v", snap)
	}
	// без выбора воронки видны стадии воронки первой стадии
	if len(snap.Stages) != 2 {
		t.Errorf("visible stages = %d, want 2", len(snap.Stages))
	}

	if code := env.do(t, http.MethodPost, "/boards/"+snap.ID+"/pipeline", tok, map[string]int{"pipeline_id": 1}, &snap); code != http.StatusOK {
		t.Fatalf("select pipeline = %d", code)
	}
	env.waitBoard(t, snap.ID, 1)
	env.do(t, http.MethodGet, "/boards/"+snap.ID, tok, nil, &snap)
	if snap.Total != 2 || len(snap.Stages) != 2 {
		t.Errorf("pipeline 1 = %+v", snap)
	}

	env.do(t, http.MethodPost, "/boards/"+snap.ID+"/stages/next", tok, nil, &snap)
	if snap.Pos != "11" {
		t.Errorf("position after next = %q, want 11", snap.Pos)
	}
	env.waitBoard(t, snap.ID, 1)
	env.do(t, http.MethodGet, "/boards/"+snap.ID, tok, nil, &snap)
	if snap.Total != 1 || snap.Leads[0].ID != "a" {
		t.Errorf("stage 11 = %+v", snap)
	}

	var stats models.CrmStats
	if code := env.do(t, http.MethodGet, "/boards/"+snap.ID+"/stats", tok, nil, &stats); code != http.StatusOK {
		t.Fatalf("stats = %d", code)
	}
	if stats.TotalLeads != 1 || stats.TotalAmount != 1000 {
		t.Errorf("stats = %+v", stats)
	}

	env.do(t, http.MethodDelete, "/boards/"+snap.ID+"/filter", tok, nil, &snap)
	if snap.Filter.Active || snap.Filter.SelectedPipelineID != nil {
		t.Errorf("filter after clear = %+v", snap.Filter)
	}

	if code := env.do(t, http.MethodDelete, "/boards/"+snap.ID, tok, nil, nil); code != http.StatusNoContent {
		t.Errorf("close = %d", code)
	}
	if code := env.do(t, http.MethodGet, "/boards/"+snap.ID, tok, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after close = %d, want 404", code)
	}
}

func TestSelectAllStages(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, authz.RoleAdmin)

	var snap snapshot
	env.do(t, http.MethodPost, "/boards", tok, nil, &snap)
	env.waitBoard(t, snap.ID, 1)
	base := "/boards/" + snap.ID

	for _, body := range []interface{}{nil, map[string]interface{}{}, map[string]interface{}{"stage_id": nil}} {
		env.do(t, http.MethodPost, base+"/stage", tok, map[string]int{"stage_id": 12}, &snap)
		if snap.Pos != "12" {
			t.Fatalf("position = %q, want 12", snap.Pos)
		}
		if code := env.do(t, http.MethodPost, base+"/stage", tok, body, &snap); code != http.StatusOK {
			t.Fatalf("body %v: status = %d, want 200", body, code)
		}
		if snap.Pos != "all" || snap.Filter.SelectedPipelineID != nil || snap.Filter.SelectedStageID != nil {
			t.Errorf("body %v: snapshot = %+v", body, snap)
		}
	}
	env.waitBoard(t, snap.ID, 1)
}

func TestBoardErrors(t *testing.T) {
	env := newTestEnv(t)
	owner := token(t, 1, authz.RoleAdmin)
	other := token(t, 2, authz.RoleAdmin)

	var snap snapshot
	env.do(t, http.MethodPost, "/boards", owner, nil, &snap)
	env.waitBoard(t, snap.ID, 1)
	base := "/boards/" + snap.ID

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   interface{}
		want   int
	}{
		{"missing board", http.MethodGet, "/boards/nope", owner, nil, http.StatusNotFound},
		{"foreign board", http.MethodGet, base, other, nil, http.StatusForbidden},
		{"pipeline without id", http.MethodPost, base + "/pipeline", owner, map[string]int{}, http.StatusBadRequest},
		{"stage malformed", http.MethodPost, base + "/stage", owner, "[", http.StatusBadRequest},
		{"page zero", http.MethodPost, base + "/page", owner, map[string]int{"page": 0}, http.StatusBadRequest},
		{"page negative", http.MethodPost, base + "/page", owner, map[string]int{"page": -1}, http.StatusBadRequest},
		{"stage by status", http.MethodPost, base + "/stage", owner, map[string]string{"status": "CLOSED"}, http.StatusOK},
		{"reload", http.MethodPost, base + "/reload", owner, nil, http.StatusOK},
		{"retry", http.MethodPost, base + "/retry", owner, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.do(t, tt.method, tt.path, tt.tok, tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
	env.waitBoard(t, snap.ID, 1)
}
