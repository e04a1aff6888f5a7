package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/beetlebase/internal/model"
)

func testRateConfig(generalBurst, importBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		ImportRate:      1,
		ImportBurst:     importBurst,
		CleanupInterval: time.Minute,
	}
}

// newFrozenRateLimiter は時刻を固定したRateLimiterを返す。トークンは補充されない。
func newFrozenRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return frozen }
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveAs(h http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/imports", nil)
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_BurstThen429(t *testing.T) {
	rl := newFrozenRateLimiter(t, testRateConfig(3, 10))
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := serveAs(handler, "u1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := serveAs(handler, "u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != ErrCodeRateLimited || body.Category != "system" {
		t.Errorf("body = %+v, want code %s", body, ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_IsolatesUsers(t *testing.T) {
	rl := newFrozenRateLimiter(t, testRateConfig(1, 10))
	handler := rl.GeneralMiddleware()(okHandler())

	serveAs(handler, "u1")
	if w := serveAs(handler, "u1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("u1 second request: status = %d, want 429", w.Code)
	}
	if w := serveAs(handler, "u2"); w.Code != http.StatusOK {
		t.Errorf("u2 first request: status = %d, want 200", w.Code)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := newFrozenRateLimiter(t, testRateConfig(1, 1))

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"general": rl.GeneralMiddleware(),
		"import":  rl.ImportMiddleware(),
	} {
		t.Run(name, func(t *testing.T) {
			w := serveAs(mw(okHandler()), "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			json.NewDecoder(w.Body).Decode(&body)
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestImportRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := newFrozenRateLimiter(t, testRateConfig(10, 2))
	// Router順: General → Import → Handler
	handler := rl.GeneralMiddleware()(rl.ImportMiddleware()(okHandler()))
	general := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := serveAs(handler, "u1"); w.Code != http.StatusOK {
			t.Fatalf("import %d: status = %d, want 200", i, w.Code)
		}
	}
	if w := serveAs(handler, "u1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("third import: status = %d, want 429", w.Code)
	}
	// インポートの上限に達しても、一般APIはまだ使える
	if w := serveAs(general, "u1"); w.Code != http.StatusOK {
		t.Errorf("general after import limit: status = %d, want 200", w.Code)
	}
	if got := rl.ImportLimiterCount(); got != 1 {
		t.Errorf("ImportLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newFrozenRateLimiter(t, testRateConfig(5, 5))
	serveAs(rl.GeneralMiddleware()(okHandler()), "idle")
	serveAs(rl.ImportMiddleware()(okHandler()), "idle")

	start := rl.now()
	rl.cleanup(start.Add(time.Minute))
	if rl.GeneralLimiterCount() != 1 || rl.ImportLimiterCount() != 1 {
		t.Fatal("entries within the TTL must be kept")
	}

	// TTLはCleanupIntervalの2倍
	rl.cleanup(start.Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.ImportLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.ImportLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware_InChainWithActor(t *testing.T) {
	users := newStubUsers(&model.User{ID: "u-chain", Email: "chain@example.com", Status: model.UserStatusActive, Plan: model.PlanFree})
	rl := newFrozenRateLimiter(t, testRateConfig(2, 10))

	handler := NewActorMiddleware(users, noImpersonation{})(rl.GeneralMiddleware()(okHandler()))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/individuals", nil)
		req.Header.Set(UserIDHeader, "u-chain")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	tests := []struct {
		name                string
		cfg                 RateLimiterConfig
		wantGeneral         float64
		wantGeneralBurst    int
		wantImportBurst     int
		wantCleanupInterval time.Duration
	}{
		{"default", DefaultRateLimiterConfig(), 2.0, 120, 10, 5 * time.Minute},
		{"per minute", NewRateLimiterConfig(60, 6), 1.0, 60, 6, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if float64(tt.cfg.GeneralRate) != tt.wantGeneral {
				t.Errorf("GeneralRate = %f, want %f", tt.cfg.GeneralRate, tt.wantGeneral)
			}
			if tt.cfg.GeneralBurst != tt.wantGeneralBurst || tt.cfg.ImportBurst != tt.wantImportBurst {
				t.Errorf("bursts = %d/%d, want %d/%d", tt.cfg.GeneralBurst, tt.cfg.ImportBurst, tt.wantGeneralBurst, tt.wantImportBurst)
			}
			if tt.cfg.CleanupInterval != tt.wantCleanupInterval {
				t.Errorf("CleanupInterval = %v, want %v", tt.cfg.CleanupInterval, tt.wantCleanupInterval)
			}
		})
	}
}
