package usage

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	model "github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/pkg/utils"
)

// Reporter 提供当日用量与配额。
type Reporter interface {
	Today(ctx context.Context, userID string) (model.Record, error)
	Limits() model.Limits
	Rates() model.Rates
}

// Handler 用量查询的HTTP处理器
type Handler struct {
	verifier auth.Verifier
	usage    Reporter
}

// New 创建用量处理器
func New(verifier auth.Verifier, usage Reporter) *Handler {
	return &Handler{verifier: verifier, usage: usage}
}

// RegisterRoutes 注册用量相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/usage/today", h.handleToday)
}

type todayResponse struct {
	Usage     model.Record `json:"usage"`
	Limits    model.Limits `json:"limits"`
	Rates     model.Rates  `json:"rates"`
	Remaining model.Limits `json:"remaining"`
}

// handleToday 返回调用者当日的用量、上限与剩余额度
func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.ParseBearer(r)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	record, err := h.usage.Today(r.Context(), userID)
	if err != nil {
		log.Printf("[usage] today for %s: %v", userID, err)
		utils.RespondError(w, http.StatusInternalServerError, "usage unavailable")
		return
	}

	limits := h.usage.Limits()
	utils.RespondJSON(w, http.StatusOK, todayResponse{
		Usage:  record,
		Limits: limits,
		Rates:  h.usage.Rates(),
		Remaining: model.Limits{
			RealtimeMinutes: remaining(limits.RealtimeMinutes, record.RealtimeMinutes),
			StandardMinutes: remaining(limits.StandardMinutes, record.StandardMinutes),
			DailyCostUSD:    remaining(limits.DailyCostUSD, record.EstimatedCostUSD),
		},
	})
}

func remaining(limit, used float64) float64 {
	if limit <= 0 || used >= limit {
		return 0
	}
	return limit - used
}
