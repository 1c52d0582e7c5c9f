package handler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paiban/nurseroster/internal/metrics"
	"github.com/paiban/nurseroster/internal/repository"
	"github.com/paiban/nurseroster/pkg/engine"
	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/logger"
)

// JobState 后台任务状态
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Done 是否已结束
func (s JobState) Done() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Job 排班生成任务
type Job struct {
	ID          uuid.UUID           `json:"id"`
	State       JobState            `json:"state"`
	Ward        string              `json:"ward,omitempty"`
	Month       string              `json:"month"`
	SubmittedAt time.Time           `json:"submitted_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	RosterID    string              `json:"roster_id,omitempty"` // 持久化后的排班ID
	Output      *engine.Output      `json:"output,omitempty"`
	Error       *apperrors.AppError `json:"error,omitempty"`

	req *engine.Request
}

// GenerateFunc 排班生成函数
type GenerateFunc func(ctx context.Context, req *engine.Request) (*engine.Output, error)

// RosterStore 排班存储，提供上月排班与结果持久化
type RosterStore interface {
	Previous(ctx context.Context, ward string, year, month int) (map[string][]string, error)
	Save(ctx context.Context, roster *repository.Roster) error
}

// JobRunnerConfig 任务执行器配置
type JobRunnerConfig struct {
	Workers   int
	QueueSize int
	Retention time.Duration // 已结束任务的保留时间
	Timeout   time.Duration // 单个任务的最长运行时间，0 为不限
}

// JobRunner 有界的后台排班任务执行器
type JobRunner struct {
	cfg      JobRunnerConfig
	generate GenerateFunc
	store    RosterStore // 可为 nil

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job

	queue  chan *Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	log    zerolog.Logger
}

// NewJobRunner 创建任务执行器，需调用 Start 启动
func NewJobRunner(cfg JobRunnerConfig, generate GenerateFunc, store RosterStore) *JobRunner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if generate == nil {
		generate = engine.Generate
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		cfg:      cfg,
		generate: generate,
		store:    store,
		jobs:     make(map[uuid.UUID]*Job),
		queue:    make(chan *Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.Get().With().Str("component", "jobs").Logger(),
	}
}

// Start 启动工作协程与过期清理
func (r *JobRunner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.janitor()
	r.log.Info().Int("workers", r.cfg.Workers).Int("queue", r.cfg.QueueSize).Msg("排班任务执行器已启动")
}

// Stop 停止接收任务并等待工作协程退出
// 正在运行的任务通过 context 取消
func (r *JobRunner) Stop(ctx context.Context) error {
	r.once.Do(r.cancel)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit 提交任务；队列已满时返回 RATE_LIMITED
func (r *JobRunner) Submit(ward string, req *engine.Request) (Job, error) {
	if r.ctx.Err() != nil {
		return Job{}, apperrors.New(apperrors.CodeInternal, "任务执行器已停止")
	}
	job := &Job{
		ID:          uuid.New(),
		State:       JobQueued,
		Ward:        ward,
		Month:       monthLabel(req.Year, req.Month),
		SubmittedAt: time.Now(),
		req:         req,
	}
	if req.RunID == "" {
		req.RunID = job.ID.String()
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.queue <- job:
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return Job{}, apperrors.New(apperrors.CodeRateLimited, "排班任务队列已满，请稍后重试")
	}

	r.log.Info().Str("job_id", job.ID.String()).Str("ward", ward).Str("month", job.Month).Msg("排班任务已提交")
	return r.snapshot(job), nil
}

// Get 查询任务
func (r *JobRunner) Get(id uuid.UUID) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (r *JobRunner) snapshot(job *Job) Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *job
}

func (r *JobRunner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			r.drain()
			return
		case job := <-r.queue:
			r.run(job)
		}
	}
}

// drain 停止时把尚未开始的任务标记为取消
func (r *JobRunner) drain() {
	for {
		select {
		case job := <-r.queue:
			r.finish(job, JobCancelled, nil, apperrors.New(apperrors.CodeTimeout, "服务停止，任务已取消"))
		default:
			return
		}
	}
}

func (r *JobRunner) run(job *Job) {
	now := time.Now()
	r.mu.Lock()
	job.State = JobRunning
	job.StartedAt = &now
	r.mu.Unlock()
	metrics.JobStarted()

	ctx := logger.ContextWithRunID(r.ctx, job.req.RunID)
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	log := logger.WithContext(ctx)

	if r.store != nil && job.Ward != "" && job.req.PreviousRoster == nil {
		prev, err := r.store.Previous(ctx, job.Ward, job.req.Year, job.req.Month)
		if err != nil {
			log.Warn().Err(err).Str("ward", job.Ward).Msg("读取上月排班失败，不生成跨月约束")
		} else if len(prev) > 0 {
			job.req.PreviousRoster = prev
		}
	}

	start := time.Now()
	out, err := r.generate(ctx, job.req)
	if err != nil {
		appErr := toAppError(err)
		metrics.RecordRosterGeneration(solverLabel(job.req.Solver), "error", time.Since(start))
		state := JobFailed
		if r.ctx.Err() != nil {
			state = JobCancelled
		}
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("排班任务失败")
		r.finish(job, state, nil, appErr)
		return
	}
	metrics.ObserveRoster(out)

	if r.store != nil && job.Ward != "" {
		roster := repository.RosterFromOutput(job.Ward, job.req.Year, job.req.Month, out)
		if err := r.store.Save(ctx, roster); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("保存排班失败")
		} else {
			r.mu.Lock()
			job.RosterID = roster.ID.String()
			r.mu.Unlock()
		}
	}

	r.finish(job, JobSucceeded, out, nil)
	log.Info().
		Str("job_id", job.ID.String()).
		Str("status", string(out.Status)).
		Dur("duration", time.Since(start)).
		Msg("排班任务完成")
}

func (r *JobRunner) finish(job *Job, state JobState, out *engine.Output, err *apperrors.AppError) {
	now := time.Now()
	r.mu.Lock()
	job.State = state
	job.FinishedAt = &now
	job.Output = out
	job.Error = err
	job.req = nil
	r.mu.Unlock()
	if state != JobCancelled || job.StartedAt != nil {
		metrics.JobFinished(string(state))
	}
}

// janitor 定期清理超过保留时间的已结束任务
func (r *JobRunner) janitor() {
	defer r.wg.Done()
	interval := r.cfg.Retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			r.purge(now)
		}
	}
}

func (r *JobRunner) purge(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, job := range r.jobs {
		if job.State.Done() && job.FinishedAt != nil && now.Sub(*job.FinishedAt) > r.cfg.Retention {
			delete(r.jobs, id)
			n++
		}
	}
	if n > 0 {
		r.log.Debug().Int("purged", n).Msg("清理过期排班任务")
	}
	return n
}

func solverLabel(name string) string {
	if name == "" {
		return "staged"
	}
	return name
}
