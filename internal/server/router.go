package server

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/railspreview/internal/auth"
	"github.com/loykin/railspreview/internal/history"
	"github.com/loykin/railspreview/internal/launcher"
	"github.com/loykin/railspreview/internal/logger"
	"github.com/loykin/railspreview/internal/metrics"
	"github.com/loykin/railspreview/internal/preview"
	"github.com/loykin/railspreview/internal/scrape"
	"github.com/loykin/railspreview/internal/workspace"
)

// Backend is what the UI drives. railspreview.App implements it.
type Backend interface {
	Clone(ctx context.Context, url string) workspace.CloneResult
	Repos() ([]string, error)
	Launch(ctx context.Context, repo string) launcher.LaunchResult
	Stop(ctx context.Context) launcher.StopResult
	Status(ctx context.Context) launcher.Status
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

// Options configures a Router.
type Options struct {
	BasePath string
	Auth     auth.Basic
	Metrics  bool // expose GET {basePath}/metrics
	Log      *slog.Logger
}

// Router serves the preview UI and its JSON API.
// Endpoints:
//
//	GET  {basePath}/             page
//	POST {basePath}/clone        form: repo_url
//	POST {basePath}/start        form: repo
//	POST {basePath}/stop
//	GET  {basePath}/api/repos
//	POST {basePath}/api/clone    body: {"repo_url": ...}
//	POST {basePath}/api/start    body: {"repo": ...}
//	POST {basePath}/api/stop
//	GET  {basePath}/api/status
//	GET  {basePath}/api/history  query: limit
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	app      Backend
	basePath string
	opts     Options
	log      *slog.Logger
}

func NewRouter(app Backend, opts Options) *Router {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Router{app: app, basePath: sanitizeBase(opts.BasePath), opts: opts, log: log}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(r.opts.Auth.GinAuth())
	group.GET("/", r.handlePage)
	group.POST("/clone", r.handleCloneForm)
	group.POST("/start", r.handleStartForm)
	group.POST("/stop", r.handleStopForm)

	api := group.Group("/api")
	api.GET("/repos", r.handleRepos)
	api.POST("/clone", r.handleClone)
	api.POST("/start", r.handleStart)
	api.POST("/stop", r.handleStop)
	api.GET("/status", r.handleStatus)
	api.GET("/history", r.handleHistory)

	if r.opts.Metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps h in an http.Server listening on addr. A launch can poll
// for minutes, so there is no write timeout.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- JSON API ---

type errorResp struct {
	Error string `json:"error"`
}

type reposResp struct {
	Repos []string `json:"repos"`
}

type startReq struct {
	Repo string `json:"repo" form:"repo"`
}

type cloneReq struct {
	RepoURL string `json:"repo_url" form:"repo_url"`
}

func (r *Router) handleRepos(c *gin.Context) {
	repos, err := r.app.Repos()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if repos == nil {
		repos = []string{}
	}
	writeJSON(c, http.StatusOK, reposResp{Repos: repos})
}

func (r *Router) handleClone(c *gin.Context) {
	var req cloneReq
	if err := c.ShouldBind(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid request: " + err.Error()})
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "repo_url required"})
		return
	}
	res := r.app.Clone(c.Request.Context(), req.RepoURL)
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusBadGateway
	}
	writeJSON(c, code, res)
}

func (r *Router) handleStart(c *gin.Context) {
	var req startReq
	if err := c.ShouldBind(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid request: " + err.Error()})
		return
	}
	if !workspace.IsSafeName(req.Repo) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid repo: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	res := r.app.Launch(c.Request.Context(), req.Repo)
	writeJSON(c, launchStatus(res.Kind), res)
}

func (r *Router) handleStop(c *gin.Context) {
	res := r.app.Stop(c.Request.Context())
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusInternalServerError
	}
	writeJSON(c, code, res)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.app.Status(c.Request.Context()))
}

func (r *Router) handleHistory(c *gin.Context) {
	events, err := r.app.Recent(c.Request.Context(), parseLimit(c))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}

// launchStatus maps a launch outcome to an HTTP status code.
func launchStatus(k launcher.Kind) int {
	switch k {
	case "":
		return http.StatusOK
	case launcher.KindBusy, launcher.KindPortInUse:
		return http.StatusConflict
	case launcher.KindNotFound:
		return http.StatusNotFound
	case launcher.KindTimeout:
		return http.StatusGatewayTimeout
	case launcher.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// --- HTML page ---

func (r *Router) handlePage(c *gin.Context) {
	r.render(c, http.StatusOK, pageData{})
}

func (r *Router) handleCloneForm(c *gin.Context) {
	var req cloneReq
	_ = c.ShouldBind(&req)
	url := strings.TrimSpace(req.RepoURL)
	if url == "" {
		r.render(c, http.StatusBadRequest, pageData{Error: "repository URL required"})
		return
	}
	res := r.app.Clone(c.Request.Context(), url)
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusBadGateway
	}
	r.render(c, code, pageData{Clone: &res, Selected: res.Repo})
}

func (r *Router) handleStartForm(c *gin.Context) {
	var req startReq
	_ = c.ShouldBind(&req)
	if !workspace.IsSafeName(req.Repo) {
		r.render(c, http.StatusBadRequest, pageData{Error: "select a repository"})
		return
	}
	res := r.app.Launch(c.Request.Context(), req.Repo)
	data := pageData{Launch: &res, Selected: req.Repo}
	if res.OK() && res.URL != "" {
		p, err := preview.Render(scrape.ExtractBodyRegion(res.HTML), res.CSS, res.URL)
		if err != nil {
			r.log.Error("render preview", "repo", req.Repo, "error", err)
		} else {
			data.Preview = p
		}
	}
	r.render(c, launchStatus(res.Kind), data)
}

func (r *Router) handleStopForm(c *gin.Context) {
	res := r.app.Stop(c.Request.Context())
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusInternalServerError
	}
	r.render(c, code, pageData{Stop: &res})
}

func (r *Router) render(c *gin.Context, code int, data pageData) {
	ctx := c.Request.Context()
	data.Base = r.basePath
	repos, err := r.app.Repos()
	if err != nil {
		r.log.Warn("list repositories", "error", err)
	}
	data.Repos = repos
	data.Status = r.app.Status(ctx)
	events, err := r.app.Recent(ctx, defaultHistoryLimit)
	if err != nil {
		r.log.Warn("read history", "error", err)
	}
	data.History = events

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(code)
	if err := pageTemplate.Execute(c.Writer, data); err != nil {
		r.log.Error("render page", "error", err)
	}
}

type pageData struct {
	Base     string
	Repos    []string
	Selected string
	Error    string
	Status   launcher.Status
	Clone    *workspace.CloneResult
	Launch   *launcher.LaunchResult
	Stop     *launcher.StopResult
	Preview  template.HTML
	History  []history.Event
}
