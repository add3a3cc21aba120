package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmboard/internal/models"
	"crmboard/internal/pipeline"
)

var (
	ErrBoardNotFound  = errors.New("board not found")
	ErrBoardForbidden = errors.New("board belongs to another user")
	ErrInvalidPage    = errors.New("page must be >= 1")
)

// LeadSource: то, откуда доска берёт воронки и лиды (apiclient.Client).
type LeadSource interface {
	GetPipelines(ctx context.Context) ([]models.RawPipeline, error)
	ListLeads(ctx context.Context, q pipeline.LeadQuery) (*models.LeadsPage, error)
}

// SourceFactory привязывает источник к токену пользователя.
type SourceFactory func(token string) LeadSource

type SnapshotPublisher interface {
	Publish(boardID string, payload interface{})
}

type subscriberCloser interface {
	CloseBoard(boardID string)
}

type ViewState string

const (
	ViewIdle    ViewState = "idle"
	ViewLoading ViewState = "loading"
	ViewReady   ViewState = "ready"
	ViewEmpty   ViewState = "empty"
	ViewError   ViewState = "error"
)

type BoardOptions struct {
	AllowedPipelines []string
	PageSize         int
	FetchTimeout     time.Duration
	IdleTTL          time.Duration
}

const statsLimit = 1000

// Board: одна открытая CRM-доска (экран). FilterState живёт только здесь.
type Board struct {
	ID      string
	OwnerID int

	source    LeadSource
	opts      BoardOptions
	publisher SnapshotPublisher
	now       func() time.Time

	mu           sync.Mutex
	dir          pipeline.Directory
	filter       pipeline.FilterState
	page         int
	pipelinesErr string
	view         ViewState
	leads        models.LeadsPage
	fetchErr     string
	generation   uint64
	cancelFetch  context.CancelFunc
	lastUsed     time.Time
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type BoardSnapshot struct {
	ID                string                 `json:"id"`
	Filter            models.FilterState     `json:"filter"`
	CurrentPipelineID *int                   `json:"currentPipelineId"`
	Pipelines         []models.Pipeline      `json:"pipelines"`
	VisibleStages     []models.Stage         `json:"visibleStages"`
	Position          pipeline.StagePosition `json:"position"`
	StageLabel        string                 `json:"stageLabel,omitempty"`
	Fallback          bool                   `json:"fallback"`
	PipelinesError    string                 `json:"pipelinesError,omitempty"`
	Query             pipeline.LeadQuery     `json:"query"`
	State             ViewState              `json:"state"`
	Leads             []models.Lead          `json:"leads"`
	Total             int                    `json:"total"`
	Page              int                    `json:"page"`
	TotalPages        int                    `json:"totalPages"`
	Error             string                 `json:"error,omitempty"`
	Generation        uint64                 `json:"generation"`
}

func newBoard(ownerID int, source LeadSource, opts BoardOptions, publisher SnapshotPublisher, now func() time.Time) *Board {
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		source:    source,
		opts:      opts,
		publisher: publisher,
		now:       now,
		page:      1,
		view:      ViewIdle,
		lastUsed:  now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *Board) loadPipelines(ctx context.Context) error {
	raw, err := b.source.GetPipelines(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		log.Printf("[board %s] pipelines fetch failed: %v", b.ID, err)
		b.pipelinesErr = err.Error()
		if len(b.dir.Stages) == 0 {
			b.dir = pipeline.BuildDirectory(nil, b.opts.AllowedPipelines)
		}
		return err
	}
	b.pipelinesErr = ""
	b.dir = pipeline.BuildDirectory(raw, b.opts.AllowedPipelines)

	// выбранная воронка могла пропасть после обновления
	if id := b.filter.SelectedPipelineID; id != nil {
		if _, ok := b.dir.Pipeline(*id); !ok {
			b.filter = b.filter.ClearAll()
			b.page = 1
		}
	}
	return nil
}

// scheduleFetchLocked отменяет предыдущий запрос и запускает новый.
// Ответ применяется, только если его поколение всё ещё текущее.
// Закрытая доска запросов не запускает: close() уже ждёт wg.
func (b *Board) scheduleFetchLocked() {
	if b.closed {
		return
	}
	if b.cancelFetch != nil {
		b.cancelFetch()
	}
	b.generation++
	gen := b.generation
	q := b.queryLocked()

	timeout := b.opts.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	b.cancelFetch = cancel
	b.view = ViewLoading
	b.fetchErr = ""

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		page, err := b.source.ListLeads(ctx, q)
		b.resolve(gen, page, err)
	}()
}

func (b *Board) resolve(gen uint64, page *models.LeadsPage, err error) {
	b.mu.Lock()
	if b.closed || gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.cancelFetch = nil
	switch {
	case err != nil:
		log.Printf("[board %s] leads fetch failed: %v", b.ID, err)
		b.view = ViewError
		b.fetchErr = err.Error()
		b.leads = models.LeadsPage{Page: b.page, Limit: b.pageSize()}
	case page == nil || len(page.Data) == 0:
		b.view = ViewEmpty
		b.leads = models.LeadsPage{Page: b.page, Limit: b.pageSize()}
		if page != nil {
			b.leads = *page
		}
	default:
		b.view = ViewReady
		b.leads = *page
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if b.publisher != nil {
		b.publisher.Publish(b.ID, snap)
	}
}

func (b *Board) pageSize() int {
	if b.opts.PageSize > 0 {
		return b.opts.PageSize
	}
	return pipeline.DefaultPageSize
}

func (b *Board) queryLocked() pipeline.LeadQuery {
	return pipeline.BuildLeadQuery(b.filter, b.page, b.pageSize())
}

// transition применяет переход и, если он что-то изменил, перезапрашивает лиды.
func (b *Board) transition(step func(f pipeline.FilterState) (pipeline.FilterState, bool)) BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = b.now()
	if b.closed {
		return b.snapshotLocked()
	}

	next, changed := step(b.filter)
	if changed {
		b.filter = next
		b.page = 1
		b.scheduleFetchLocked()
	}
	return b.snapshotLocked()
}

func (b *Board) SelectPipeline(id int) BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return f.SelectPipeline(id), true
	})
}

func (b *Board) SelectStage(stageID *int, status string) BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return f.SelectStage(stageID, status), true
	})
}

func (b *Board) ClearFilter() BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return f.ClearAll(), true
	})
}

func (b *Board) NextStage() BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return pipeline.NextStage(f, b.dir.Stages)
	})
}

func (b *Board) PrevStage() BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return pipeline.PrevStage(f, b.dir.Stages)
	})
}

func (b *Board) NextPipeline() BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return pipeline.NextPipeline(f, b.dir.Stages, b.dir.Pipelines)
	})
}

func (b *Board) PrevPipeline() BoardSnapshot {
	return b.transition(func(f pipeline.FilterState) (pipeline.FilterState, bool) {
		return pipeline.PrevPipeline(f, b.dir.Stages, b.dir.Pipelines)
	})
}

// SetPage листает текущую выборку, фильтр не меняется.
func (b *Board) SetPage(page int) (BoardSnapshot, error) {
	if page < 1 {
		return BoardSnapshot{}, ErrInvalidPage
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = b.now()
	if b.closed {
		return b.snapshotLocked(), ErrBoardNotFound
	}
	if page != b.page {
		b.page = page
		b.scheduleFetchLocked()
	}
	return b.snapshotLocked(), nil
}

// Retry повторяет тот же запрос без изменений.
func (b *Board) Retry() BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = b.now()
	b.scheduleFetchLocked()
	return b.snapshotLocked()
}

func (b *Board) ReloadPipelines(ctx context.Context) (BoardSnapshot, error) {
	if b.isClosed() {
		return b.Snapshot(), ErrBoardNotFound
	}
	err := b.loadPipelines(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = b.now()
	if err == nil {
		b.scheduleFetchLocked()
	}
	return b.snapshotLocked(), err
}

// Stats считает сводку по первой тысяче лидов текущей выборки.
func (b *Board) Stats(ctx context.Context) (models.CrmStats, error) {
	b.mu.Lock()
	q := pipeline.BuildLeadQuery(b.filter, 1, statsLimit)
	b.lastUsed = b.now()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return models.CrmStats{}, ErrBoardNotFound
	}

	page, err := b.source.ListLeads(ctx, q)
	if err != nil {
		return models.CrmStats{}, err
	}
	return ComputeStats(page.Data, b.now()), nil
}

func (b *Board) Snapshot() BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() BoardSnapshot {
	visible := b.filter.VisibleStages(b.dir.Stages)
	stages := make([]models.Stage, len(visible))
	for i, s := range visible {
		s.Color = pipeline.StageColor(s)
		stages[i] = s
	}

	snap := BoardSnapshot{
		ID:                b.ID,
		Filter:            b.filter.FilterState,
		CurrentPipelineID: b.filter.CurrentPipelineID(b.dir.Stages),
		Pipelines:         append([]models.Pipeline(nil), b.dir.Pipelines...),
		VisibleStages:     stages,
		Position:          pipeline.PositionOf(b.filter, visible),
		Fallback:          b.dir.IsFallback(),
		PipelinesError:    b.pipelinesErr,
		Query:             b.queryLocked(),
		State:             b.view,
		Leads:             append([]models.Lead(nil), b.leads.Data...),
		Total:             b.leads.Total,
		Page:              b.page,
		TotalPages:        b.leads.TotalPages,
		Error:             b.fetchErr,
		Generation:        b.generation,
	}
	if id := b.filter.SelectedStageID; id != nil {
		snap.StageLabel = pipeline.StageLabel(b.dir, *id)
	} else if st := b.filter.SelectedStatus; st != nil {
		snap.StageLabel = pipeline.StatusDisplay(*st).Label
	}
	return snap
}

// Wait ждёт завершения запущенных запросов.
func (b *Board) Wait() {
	b.wg.Wait()
}

func (b *Board) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}

func (b *Board) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Board) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}

// BoardService хранит открытые доски в памяти.
type BoardService struct {
	newSource SourceFactory
	opts      BoardOptions
	publisher SnapshotPublisher
	now       func() time.Time

	mu     sync.Mutex
	boards map[string]*Board
}

func NewBoardService(newSource SourceFactory, opts BoardOptions, publisher SnapshotPublisher) *BoardService {
	if opts.PageSize <= 0 {
		opts.PageSize = pipeline.DefaultPageSize
	}
	return &BoardService{
		newSource: newSource,
		opts:      opts,
		publisher: publisher,
		now:       time.Now,
		boards:    make(map[string]*Board),
	}
}

// Open создаёт доску: синхронно грузит воронки и запускает загрузку лидов.
// Ошибка загрузки воронок не фатальна: доска открывается с fallback-стадиями.
func (s *BoardService) Open(ctx context.Context, ownerID int, token string) *Board {
	b := newBoard(ownerID, s.newSource(token), s.opts, s.publisher, s.now)
	_ = b.loadPipelines(ctx)

	b.mu.Lock()
	b.scheduleFetchLocked()
	b.mu.Unlock()

	s.mu.Lock()
	s.boards[b.ID] = b
	s.mu.Unlock()

	log.Printf("[boards] opened %s for user %d", b.ID, ownerID)
	return b
}

func (s *BoardService) Get(id string, ownerID int) (*Board, error) {
	s.mu.Lock()
	b, ok := s.boards[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrBoardNotFound
	}
	if b.OwnerID != ownerID {
		return nil, ErrBoardForbidden
	}
	return b, nil
}

// Close: аналог размонтирования экрана: фильтр выбрасывается.
func (s *BoardService) Close(id string, ownerID int) error {
	b, err := s.Get(id, ownerID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.boards, id)
	s.mu.Unlock()
	b.close()
	s.disconnect(b.ID)
	return nil
}

// disconnect закрывает подписки на снимки, если издатель это умеет.
func (s *BoardService) disconnect(id string) {
	if c, ok := s.publisher.(subscriberCloser); ok {
		c.CloseBoard(id)
	}
}

func (s *BoardService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boards)
}

// Sweep закрывает доски, к которым не обращались дольше IdleTTL.
func (s *BoardService) Sweep(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	var stale []*Board
	s.mu.Lock()
	for id, b := range s.boards {
		if now.Sub(b.idleSince()) > s.opts.IdleTTL {
			stale = append(stale, b)
			delete(s.boards, id)
		}
	}
	s.mu.Unlock()

	for _, b := range stale {
		b.close()
		s.disconnect(b.ID)
		log.Printf("[boards] evicted idle board %s", b.ID)
	}
	return len(stale)
}

// CloseAll закрывает все доски при остановке сервиса.
func (s *BoardService) CloseAll() {
	s.mu.Lock()
	boards := s.boards
	s.boards = make(map[string]*Board)
	s.mu.Unlock()

	for id, b := range boards {
		b.close()
		s.disconnect(id)
	}
}

// RunSweeper вызывает Sweep по тикеру до отмены ctx.
func (s *BoardService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Sweep(t)
		}
	}
}
