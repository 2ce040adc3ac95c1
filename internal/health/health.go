// Package health отдаёт HTTP-пробы сервиса заказов: /healthz, /readyz и /livez.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: сводный статус равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

func worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

const defaultCheckTimeout = 2 * time.Second

var dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "orders_dependency_up",
	Help: "1 if the last health check of the dependency succeeded.",
}, []string{"dependency"})

// Check — результат проверки одной зависимости.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Ready сообщает, может ли сервис принимать трафик. Деградация некритичных зависимостей готовность не снимает.
func (r Response) Ready() bool { return r.Status != StatusUnhealthy }

// Checker проверяет одну зависимость. Check не должен блокироваться дольше ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// CheckerFunc позволяет использовать функцию как Checker.
type CheckerFunc func(ctx context.Context) Check

func (f CheckerFunc) Check(ctx context.Context) Check { return f(ctx) }

type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration

	version string
	started time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		timeout:  defaultCheckTimeout,
		version:  version,
		started:  time.Now(),
	}
}

// RegisterChecker добавляет проверку; повторная регистрация под тем же именем заменяет прежнюю.
// В ответе проверка всегда называется именем регистрации.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// SetTimeout ограничивает время одного прогона всех проверок. Неположительное значение игнорируется.
func (h *Handler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = timeout
}

// Run выполняет все проверки параллельно и сводит их в общий статус.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	checkers := maps.Clone(h.checkers)
	timeout := h.timeout
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan Check, len(checkers))
	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			check := checker.Check(ctx)
			check.Name = name
			results <- check
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	resp := Response{
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Checks:        make(map[string]Check, len(checkers)),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	for check := range results {
		resp.Checks[check.Name] = check
		resp.Status = worse(resp.Status, check.Status)

		up := 0.0
		if check.Status == StatusHealthy {
			up = 1
		}
		dependencyUp.WithLabelValues(check.Name).Set(up)
	}
	return resp
}

// Watch прогоняет проверки каждые interval и передаёт результат в fn, пока ctx не отменён.
// Первый прогон выполняется сразу.
func (h *Handler) Watch(ctx context.Context, interval time.Duration, fn func(Response)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(h.Run(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	code := http.StatusOK
	if !resp.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// ReadinessHandler отвечает 503, пока хотя бы одна критичная зависимость недоступна.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	if !resp.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	writeText(w, "ready")
}

// LivenessHandler отвечает 200, пока процесс способен обслуживать HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, "ok")
}

// Register вешает пробы на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h)
	mux.HandleFunc("GET /readyz", h.ReadinessHandler)
	mux.HandleFunc("GET /livez", LivenessHandler)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// NewPingChecker оборачивает ping зависимости (Store.Ping, Producer.Ping, HTTPClient.Ping).
// Сбой критичной зависимости делает сервис unhealthy, некритичной — degraded.
func NewPingChecker(name string, ping func(ctx context.Context) error, critical bool) Checker {
	failed := StatusDegraded
	if critical {
		failed = StatusUnhealthy
	}
	return CheckerFunc(func(ctx context.Context) Check {
		start := time.Now()
		err := ping(ctx)
		check := Check{Name: name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Status = failed
			check.Message = err.Error()
		}
		return check
	})
}
