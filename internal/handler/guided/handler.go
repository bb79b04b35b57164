package guided

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-journal/backend/internal/handler/relay"
	model "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/pkg/utils"
)

// Handler 引导式会话目录的HTTP处理器
type Handler struct {
	definitions model.Store
	router      relay.ModeResolver
}

// New 创建引导式会话处理器
func New(definitions model.Store, router relay.ModeResolver) *Handler {
	return &Handler{definitions: definitions, router: router}
}

// RegisterRoutes 注册引导式会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/guided-sessions", h.handleList)
}

type definitionView struct {
	Type              string       `json:"type"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	HighInteractivity bool         `json:"highInteractivity"`
	PromptCount       int          `json:"promptCount"`
	Mode              session.Mode `json:"mode"`
}

// handleList 列出所有引导式会话及其默认处理模式
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	defs := h.definitions.List()
	views := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		mode, err := h.router.Resolve(r.Context(), "", def.Type)
		if err != nil {
			log.Printf("[guided] resolve mode for %s: %v", def.Type, err)
			utils.RespondError(w, http.StatusInternalServerError, "mode policy unavailable")
			return
		}
		views = append(views, definitionView{
			Type:              def.Type,
			Title:             def.Title,
			Description:       def.Description,
			HighInteractivity: def.HighInteractivity,
			PromptCount:       len(def.Prompts),
			Mode:              mode,
		})
	}
	utils.RespondJSON(w, http.StatusOK, views)
}
