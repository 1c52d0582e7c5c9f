package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paiban/nurseroster/internal/constraints"
	"github.com/paiban/nurseroster/internal/repository"
	"github.com/paiban/nurseroster/pkg/engine"
	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/boundary"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
	"github.com/paiban/nurseroster/pkg/swap"
)

// Defaults 请求未指定时使用的服务端默认值
type Defaults struct {
	Solver  string
	Options solver.Options
	LNS     *optimizer.LNSConfig
	Config  *model.RosterConfig // 为 nil 时使用 model.DefaultRosterConfig
}

// RosterQuery 已保存排班的查询
type RosterQuery interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Roster, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*repository.Roster, int, error)
}

// RosterHandler 排班处理器
type RosterHandler struct {
	jobs     *JobRunner
	defaults Defaults
	query    RosterQuery // 未配置数据库时为 nil
}

// NewRosterHandler 创建排班处理器
func NewRosterHandler(jobs *JobRunner, defaults Defaults, query RosterQuery) *RosterHandler {
	return &RosterHandler{jobs: jobs, defaults: defaults, query: query}
}

// GenerateRequest 排班生成请求
type GenerateRequest struct {
	Ward string `json:"ward,omitempty"` // 设置后从存储读取上月排班并保存结果
	engine.Request
}

// GenerateResponse 任务已受理
type GenerateResponse struct {
	JobID     string   `json:"job_id"`
	State     JobState `json:"state"`
	StatusURL string   `json:"status_url"`
}

// RosterRequest 针对给定排班的请求（校验、分析、换班）
type RosterRequest struct {
	engine.Request
	Roster map[string][]string `json:"roster"` // nurse_id -> 逐日代码
}

// ValidateResponse 排班校验结果
type ValidateResponse struct {
	*constraint.Result
	Status model.Status `json:"status"`
}

// BoundaryRequest 跨月边界请求
type BoundaryRequest struct {
	Config         *model.RosterConfig `json:"config"`
	NurseIDs       []string            `json:"nurse_ids,omitempty"` // 为空时取上月排班中的全部护士
	PreviousRoster map[string][]string `json:"previous_roster"`
	Lookback       int                 `json:"lookback,omitempty"`
}

// SwapRequest 换班请求；NurseB 为空时返回换班推荐
type SwapRequest struct {
	RosterRequest
	NurseA string `json:"nurse_a"`
	NurseB string `json:"nurse_b,omitempty"`
	Day    int    `json:"day"` // 0 起
	K      int    `json:"k,omitempty"`
}

// SwapResponse 换班评估或推荐
type SwapResponse struct {
	Evaluation      *swap.SwapEvaluation  `json:"evaluation,omitempty"`
	Recommendations []swap.Recommendation `json:"recommendations,omitempty"`
}

// applyDefaults 补全服务端默认配置
func (h *RosterHandler) applyDefaults(req *engine.Request) {
	if req.Config == nil {
		req.Config = h.defaultConfig()
	}
	if req.Solver == "" {
		req.Solver = h.defaults.Solver
	}
	if req.Options == nil {
		opts := h.defaults.Options
		if opts.TimeLimit == 0 {
			opts = solver.DefaultOptions()
		}
		req.Options = &opts
	}
	if req.LNS == nil && h.defaults.LNS != nil {
		lns := *h.defaults.LNS
		req.LNS = &lns
	}
}

// defaultConfig 每次返回独立副本，Normalize 会改写 ShiftTypes
func (h *RosterHandler) defaultConfig() *model.RosterConfig {
	if h.defaults.Config == nil {
		return model.DefaultRosterConfig()
	}
	raw, err := json.Marshal(h.defaults.Config)
	if err != nil {
		return model.DefaultRosterConfig()
	}
	cfg := &model.RosterConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return model.DefaultRosterConfig()
	}
	return cfg
}

// Generate 提交排班生成任务
func (h *RosterHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	h.applyDefaults(&req.Request)

	// 同步校验输入，错误直接返回 4xx
	if _, err := engine.Prepare(&req.Request); err != nil {
		respondError(w, err)
		return
	}

	job, err := h.jobs.Submit(req.Ward, &req.Request)
	if err != nil {
		respondError(w, err)
		return
	}

	logger.WithContext(r.Context()).Info().
		Str("job_id", job.ID.String()).
		Str("month", job.Month).
		Int("nurses", len(req.Nurses)).
		Msg("接收排班生成请求")

	w.Header().Set("Location", "/api/v1/rosters/jobs/"+job.ID.String())
	respondJSON(w, http.StatusAccepted, GenerateResponse{
		JobID:     job.ID.String(),
		State:     job.State,
		StatusURL: "/api/v1/rosters/jobs/" + job.ID.String(),
	})
}

// GetJob 查询排班任务
func (h *RosterHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.InvalidInput("id", "无效的任务ID格式"))
		return
	}
	job, ok := h.jobs.Get(id)
	if !ok {
		respondError(w, apperrors.NotFound("job", id.String()))
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// prepareRoster 解析请求并导入给定排班
func (h *RosterHandler) prepareRoster(req *RosterRequest) (*engine.Prepared, *model.Roster, error) {
	if len(req.Roster) == 0 {
		return nil, nil, apperrors.InvalidInput("roster", "排班不能为空")
	}
	h.applyDefaults(&req.Request)
	p, err := engine.Prepare(&req.Request)
	if err != nil {
		return nil, nil, err
	}
	grid, err := p.Import(req.Roster)
	if err != nil {
		return nil, nil, err
	}
	return p, grid, nil
}

// Validate 校验给定排班的违规
func (h *RosterHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req RosterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, grid, err := h.prepareRoster(&req)
	if err != nil {
		respondError(w, err)
		return
	}

	result := p.Validate(grid)
	status := model.StatusSuccess
	if len(result.HardViolations) > 0 {
		status = model.StatusPartial
	}
	respondJSON(w, http.StatusOK, ValidateResponse{Result: result, Status: status})
}

// Analyze 计算给定排班的统计指标
func (h *RosterHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req RosterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, grid, err := h.prepareRoster(&req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p.Analyze(grid))
}

// Boundary 由上月排班生成 initial_constraints
func (h *RosterHandler) Boundary(w http.ResponseWriter, r *http.Request) {
	var req BoundaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	res, err := h.boundary(&req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *RosterHandler) boundary(req *BoundaryRequest) (*boundary.Result, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = h.defaultConfig()
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	ids := req.NurseIDs
	if len(ids) == 0 {
		for id := range req.PreviousRoster {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	return boundary.NewBuilder(cfg, req.Lookback).Build(req.PreviousRoster, ids), nil
}

// Swap 评估两名护士同日换班，或为一名护士推荐换班对象
func (h *RosterHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, grid, err := h.prepareRoster(&req.RosterRequest)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.Day < 0 || req.Day >= p.Month.Days() {
		respondError(w, apperrors.InvalidInput("day", fmt.Sprintf("日索引越界: %d", req.Day)))
		return
	}
	a, ok := p.Index.Index(req.NurseA)
	if !ok {
		respondError(w, apperrors.InvalidInput("nurse_a", "未知护士: "+req.NurseA))
		return
	}

	evaluator, err := swap.NewSwapEvaluator(p.SwapScenario())
	if err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInternal, "创建换班评估器失败"))
		return
	}

	if req.NurseB == "" {
		k := req.K
		if k <= 0 {
			k = swap.DefaultRecommendOptions().MaxRecommendations
		}
		recs := swap.NewRecommender(evaluator).Recommend(grid, a, req.Day, k)
		respondJSON(w, http.StatusOK, SwapResponse{Recommendations: recs})
		return
	}

	b, ok := p.Index.Index(req.NurseB)
	if !ok {
		respondError(w, apperrors.InvalidInput("nurse_b", "未知护士: "+req.NurseB))
		return
	}
	eval := evaluator.EvaluateSwap(grid, swap.SwapRequest{NurseA: a, NurseB: b, Day: req.Day})
	respondJSON(w, http.StatusOK, SwapResponse{Evaluation: eval})
}

// Rules 规则目录
func (h *RosterHandler) Rules(w http.ResponseWriter, r *http.Request) {
	lib := constraints.GetLibrary(h.defaultConfig())
	if typ := r.URL.Query().Get("type"); typ != "" {
		lib = constraints.GetByCategory(lib, typ)
	}
	respondJSON(w, http.StatusOK, constraints.LibraryResponse{Library: lib})
}

// ListRosters 列出已保存的排班
func (h *RosterHandler) ListRosters(w http.ResponseWriter, r *http.Request) {
	if h.query == nil {
		respondError(w, apperrors.New(apperrors.CodeNotFound, "未配置排班存储"))
		return
	}
	q := r.URL.Query()
	filter := repository.DefaultListFilter().
		WithWard(q.Get("ward")).
		WithStatus(q.Get("status"))
	if v, err := strconv.Atoi(q.Get("year")); err == nil {
		filter.Year = v
	}
	if v, err := strconv.Atoi(q.Get("month")); err == nil {
		filter.Month = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 100 {
		filter = filter.WithLimit(v)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter = filter.WithOffset(v)
	}

	rosters, total, err := h.query.List(r.Context(), filter)
	if err != nil {
		respondError(w, apperrors.Database(err, "list rosters"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  rosters,
		"total":  total,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

// GetRoster 获取已保存的排班
func (h *RosterHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	if h.query == nil {
		respondError(w, apperrors.New(apperrors.CodeNotFound, "未配置排班存储"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.InvalidInput("id", "无效的排班ID格式"))
		return
	}
	roster, err := h.query.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, apperrors.NotFound("roster", id.String()))
		return
	}
	if err != nil {
		respondError(w, apperrors.Database(err, "get roster"))
		return
	}
	respondJSON(w, http.StatusOK, roster)
}
