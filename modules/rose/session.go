package rose

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// ControllerFactory - 세션 언어에 맞는 새 컨트롤러 생성
type ControllerFactory func(lang language.Tag) *Controller

// Metrics - 세션 레지스트리 통계
type Metrics struct {
	StartTime      time.Time `json:"startTime"`
	TotalSessions  int       `json:"totalSessions"`
	ActiveSessions int       `json:"activeSessions"`
	Generating     int       `json:"generating"`
	SweptSessions  int       `json:"sweptSessions"`
}

// Registry - 브라우저 세션(쿠키)별 컨트롤러 관리
type Registry struct {
	factory ControllerFactory
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mutex    sync.RWMutex
	sessions map[string]*Controller
	metrics  Metrics
}

// NewRegistry - ttl 동안 활동이 없는 세션은 Sweep에서 정리됨
func NewRegistry(factory ControllerFactory, ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
		sessions: make(map[string]*Controller),
		metrics:  Metrics{StartTime: time.Now()},
	}
}

// Reset - 페이지 새로고침: 세션 상태를 새 컨트롤러로 교체
// 진행 중이던 이전 호출은 이전 컨트롤러에서 끝나고 버려짐
func (r *Registry) Reset(sessionID string, lang language.Tag) *Controller {
	ctrl := r.factory(lang)

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.sessions[sessionID]; !exists {
		r.metrics.TotalSessions++
		r.log.Info().Msgf("✅ [Session] Created new session: %s (Total: %d, Active: %d)",
			sessionID, r.metrics.TotalSessions, len(r.sessions)+1)
	}
	r.sessions[sessionID] = ctrl
	return ctrl
}

// Get - 세션 컨트롤러 조회
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ctrl, ok := r.sessions[sessionID]
	return ctrl, ok
}

// Sweep - ttl 이상 활동 없는 세션 정리 (생성 중인 세션은 유지). 정리된 개수 반환
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := 0
	for id, ctrl := range r.sessions {
		if ctrl.Busy() || ctrl.LastActivity().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	r.metrics.SweptSessions += removed
	if removed > 0 {
		r.log.Info().Msgf("🗑️  [Session] Cleaned up %d expired sessions (Remaining: %d)", removed, len(r.sessions))
	}
	return removed
}

// Run - interval 마다 Sweep, ctx 취소 시 종료
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info().Msgf("🔄 [Session] Started cleanup routine (interval: %s, ttl: %s)", interval, r.ttl)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Metrics - 현재 통계
func (r *Registry) Metrics() Metrics {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m := r.metrics
	m.ActiveSessions = len(r.sessions)
	for _, ctrl := range r.sessions {
		if ctrl.Busy() {
			m.Generating++
		}
	}
	return m
}
