// mock-provider emulates the upstream SMS and Telegram HTTP contracts for
// local development and bulk testing. Point the adapters at it with the
// BaseURL overrides on providers.Selector.
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	OutcomeMode string `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw string `envconfig:"MOCK_OUTCOMES" default:"ok"`
	DelayMs     int    `envconfig:"MOCK_DELAY_MS" default:"0"`

	Outcomes []string
	Delay    time.Duration
}

type server struct {
	cfg   config
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
}

func main() {
	cfg := loadConfig()
	loggingInit(cfg.LogFormat)

	s := &server{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/send/shared/{apiKey}", s.handleMeliPayamak).Methods(http.MethodPost)
	router.HandleFunc("/v1/{apiKey}/verify/lookup.json", s.handleKavenegar).Methods(http.MethodGet)
	router.HandleFunc("/v1/send/verify", s.handleSMSIr).Methods(http.MethodPost)
	router.HandleFunc("/v1/api/send", s.handleIPPanel).Methods(http.MethodPost)
	router.HandleFunc("/bot{token}/sendMessage", s.handleTelegram).Methods(http.MethodPost)

	slog.Info("mock provider listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(router)); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock provider config load failed", "err", err)
		os.Exit(1)
	}
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	return cfg
}

func loggingInit(format string) {
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(h))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock provider request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// handleMeliPayamak emulates POST /api/send/shared/{apiKey}. Success is a
// positive recId; the adapter treats recId<=0 as a logical failure.
func (s *server) handleMeliPayamak(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BodyID int64    `json:"bodyId"`
		To     string   `json:"to"`
		Args   []string `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.To == "" || body.BodyID == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"recId": 0, "status": "invalid request"})
		return
	}
	s.sleep()

	switch s.nextOutcome() {
	case "ok", "success":
		writeJSON(w, http.StatusOK, map[string]any{
			"recId":  int64(atomic.AddUint64(&s.idx, 1)),
			"status": "ارسال موفق بود",
		})
	case "server_error", "500":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"recId": 0, "status": "server error"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"recId": 0, "status": "شماره مسدود است"})
	}
}

// handleKavenegar emulates GET /v1/{apiKey}/verify/lookup.json. Success is
// return.status == 200.
func (s *server) handleKavenegar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("receptor") == "" || q.Get("template") == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"return": map[string]any{"status": 411, "message": "receptor is required"},
		})
		return
	}
	s.sleep()

	switch s.nextOutcome() {
	case "ok", "success":
		writeJSON(w, http.StatusOK, map[string]any{
			"return":  map[string]any{"status": 200, "message": "تایید شد"},
			"entries": []map[string]any{{"messageid": atomic.AddUint64(&s.idx, 1), "status": 5}},
		})
	case "server_error", "500":
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"return": map[string]any{"status": 500, "message": "server error"},
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"return": map[string]any{"status": 418, "message": "اعتبار کافی نیست"},
		})
	}
}

// handleSMSIr emulates POST /v1/send/verify. Success is status == 1.
func (s *server) handleSMSIr(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-api-key") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 101, "message": "invalid api key"})
		return
	}
	var body struct {
		Mobile     string `json:"mobile"`
		TemplateID int64  `json:"templateId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Mobile == "" || body.TemplateID == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": 104, "message": "invalid request"})
		return
	}
	s.sleep()

	switch s.nextOutcome() {
	case "ok", "success":
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  1,
			"message": "موفق",
			"data":    map[string]any{"messageId": atomic.AddUint64(&s.idx, 1), "cost": 1.0},
		})
	case "server_error", "500":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": 110, "message": "server error"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": 105, "message": "اعتبار کافی نیست"})
	}
}

// handleIPPanel emulates POST /v1/api/send. Success is meta.status == true.
func (s *server) handleIPPanel(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"meta": map[string]any{"status": false, "message": "unauthorized", "message_code": "401"},
		})
		return
	}
	var body struct {
		Code       string   `json:"code"`
		Recipients []string `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Recipients) == 0 || body.Code == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{"status": false, "message": "invalid request", "message_code": "422"},
		})
		return
	}
	s.sleep()

	switch s.nextOutcome() {
	case "ok", "success":
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"message_id": atomic.AddUint64(&s.idx, 1)},
			"meta": map[string]any{"status": true, "message": "ok", "message_code": "200"},
		})
	case "server_error", "500":
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"meta": map[string]any{"status": false, "message": "server error", "message_code": "500"},
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{"status": false, "message": "insufficient credit", "message_code": "402"},
		})
	}
}

// handleTelegram emulates POST /bot{token}/sendMessage. Success is ok == true.
func (s *server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChatID == "" || body.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error_code": 400, "description": "Bad Request: message text is empty",
		})
		return
	}
	s.sleep()

	switch s.nextOutcome() {
	case "ok", "success":
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": atomic.AddUint64(&s.idx, 1),
				"text":       body.Text,
			},
		})
	case "server_error", "500":
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok": false, "error_code": 500, "description": "Internal Server Error",
		})
	default:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"ok": false, "error_code": 403, "description": "Forbidden: bot was blocked by the user",
		})
	}
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

func (s *server) sleep() {
	if s.cfg.Delay > 0 {
		time.Sleep(s.cfg.Delay)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}
