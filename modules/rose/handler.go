package rose

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"rosa-canvas-server/modules/common/i18n"
	"rosa-canvas-server/modules/common/utils"
)

const (
	SessionCookie = "rosa_session"

	StatePath     = "/api/rose/state"
	FormPath      = "/api/rose/form"
	ReferencePath = "/api/rose/reference"
	GeneratePath  = "/api/rose/generate"
	PreviewPath   = "/api/rose/preview"
	DownloadPath  = "/api/rose/download"
	WebSocketPath = "/ws"
)

// FormRequest - 폼 변경 요청 (보낸 필드만 반영)
type FormRequest struct {
	Name        *string `json:"name,omitempty"`
	SizePercent *int    `json:"size_percent,omitempty"`
}

// StateResponse - 공통 응답
type StateResponse struct {
	Success      bool     `json:"success"`
	ErrorMessage string   `json:"error_message,omitempty"`
	State        Snapshot `json:"state"`
}

// Handler - 장미 디자이너 HTTP 핸들러
type Handler struct {
	registry        *Registry
	catalog         *i18n.Catalog
	page            *Page
	maxUploadMemory int64
	log             zerolog.Logger
}

// NewHandler - 핸들러 생성
func NewHandler(registry *Registry, catalog *i18n.Catalog, page *Page, maxUploadMemory int64, log zerolog.Logger) *Handler {
	return &Handler{
		registry:        registry,
		catalog:         catalog,
		page:            page,
		maxUploadMemory: maxUploadMemory,
		log:             log,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.HandleIndex).Methods("GET")
	r.HandleFunc(StatePath, h.HandleState).Methods("GET")
	r.HandleFunc(FormPath, h.HandleForm).Methods("POST")
	r.HandleFunc(ReferencePath, h.HandleUploadReference).Methods("POST")
	r.HandleFunc(ReferencePath, h.HandleGetReference).Methods("GET")
	r.HandleFunc(ReferencePath, h.HandleClearReference).Methods("DELETE")
	r.HandleFunc(GeneratePath, h.HandleGenerate).Methods("POST")
	r.HandleFunc(PreviewPath, h.HandlePreview).Methods("GET")
	r.HandleFunc(DownloadPath, h.HandleDownload).Methods("GET")
	r.HandleFunc(WebSocketPath, h.HandleWebSocket)
}

// HandleIndex - GET / : 페이지 렌더링. 새로고침하면 세션 상태 초기화
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctrl := h.registry.Reset(sessionID, h.catalog.Resolve(r.Header.Get("Accept-Language")))
	setSessionCookie(w, sessionID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.page.Render(w, ctrl.Snapshot()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("❌ [Rose] Failed to render page")
	}
}

// HandleState - GET /api/rose/state
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	writeJSON(w, http.StatusOK, StateResponse{Success: true, State: ctrl.Snapshot()})
}

// HandleForm - POST /api/rose/form
func (h *Handler) HandleForm(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)

	if !h.applyForm(w, r, ctrl, false) {
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Success: true, State: ctrl.Snapshot()})
}

// applyForm - 요청 본문의 폼 값을 반영. 잘못된 JSON이면 400 응답 후 false
// allowEmpty 이면 본문이 비어 있어도 통과
func (h *Handler) applyForm(w http.ResponseWriter, r *http.Request, ctrl *Controller, allowEmpty bool) bool {
	var req FormRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("⚠️ [Rose] Invalid form request")
		writeJSON(w, http.StatusBadRequest, StateResponse{
			ErrorMessage: ctrl.Message(i18n.InvalidRequest),
			State:        ctrl.Snapshot(),
		})
		return false
	}

	if req.Name != nil {
		ctrl.SetName(*req.Name)
	}
	if req.SizePercent != nil {
		ctrl.SetSize(*req.SizePercent)
	}
	return true
}

// HandleUploadReference - POST /api/rose/reference (multipart, field "image")
func (h *Handler) HandleUploadReference(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	log := zerolog.Ctx(r.Context())

	if err := r.ParseMultipartForm(h.maxUploadMemory); err != nil {
		log.Warn().Err(err).Msg("⚠️ [Rose] Invalid multipart upload")
		writeJSON(w, http.StatusBadRequest, StateResponse{
			ErrorMessage: ctrl.Message(i18n.InvalidRequest),
			State:        ctrl.Snapshot(),
		})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StateResponse{
			ErrorMessage: ctrl.Message(i18n.InvalidRequest),
			State:        ctrl.Snapshot(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Msg("❌ [Rose] Failed to read upload")
		writeJSON(w, http.StatusBadRequest, StateResponse{
			ErrorMessage: ctrl.Message(i18n.InvalidRequest),
			State:        ctrl.Snapshot(),
		})
		return
	}
	log.Info().Msgf("📥 [Rose] Reference upload: %s, %d bytes", header.Filename, len(data))

	switch err := ctrl.SetReferenceImage(data); {
	case errors.Is(err, ErrNotAnImage):
		writeJSON(w, http.StatusUnsupportedMediaType, StateResponse{
			ErrorMessage: ctrl.Message(i18n.NotAnImage),
			State:        ctrl.Snapshot(),
		})
	default:
		// 디코딩 실패는 "참조 이미지 없음"으로 처리하고 notice만 보여줌
		writeJSON(w, http.StatusOK, StateResponse{Success: true, State: ctrl.Snapshot()})
	}
}

// HandleGetReference - GET /api/rose/reference : 정규화된 참조 이미지 미리보기
func (h *Handler) HandleGetReference(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	data, ok := ctrl.ReferenceImage()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleClearReference - DELETE /api/rose/reference
func (h *Handler) HandleClearReference(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	ctrl.ClearReferenceImage()
	writeJSON(w, http.StatusOK, StateResponse{Success: true, State: ctrl.Snapshot()})
}

// HandleGenerate - POST /api/rose/generate
// 본문에 {name, size_percent}가 있으면 화면에 보이는 값으로 먼저 맞춘 뒤 제출
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)

	if !h.applyForm(w, r, ctrl, true) {
		return
	}

	err := ctrl.Submit(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, StateResponse{Success: true, State: ctrl.Snapshot()})
	case IsValidation(err):
		writeJSON(w, http.StatusBadRequest, StateResponse{
			ErrorMessage: ctrl.Message(i18n.MissingName),
			State:        ctrl.Snapshot(),
		})
	case errors.Is(err, ErrAlreadyGenerating):
		writeJSON(w, http.StatusConflict, StateResponse{
			ErrorMessage: ctrl.Message(i18n.AlreadyGenerating),
			State:        ctrl.Snapshot(),
		})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("❌ [Rose] Submit failed")
		writeJSON(w, http.StatusInternalServerError, StateResponse{
			ErrorMessage: ctrl.Message(i18n.ConnectionError),
			State:        ctrl.Snapshot(),
		})
	}
}

// HandlePreview - GET /api/rose/preview : 결과 이미지 (WebP로 변환해서 가볍게, 실패하면 원본)
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	result, ok := ctrl.Result()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	webpData, err := utils.ConvertPNGToWebP(result.ImageData, 90.0)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("⚠️ [Rose] WebP preview failed, serving original")
		w.Header().Set("Content-Type", result.MIMEType)
		w.Write(result.ImageData)
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	w.Write(webpData)
}

// HandleDownload - GET /api/rose/download : Rosa_<name>_<size>.png
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	filename, mimeType, data, ok := ctrl.Download()
	if !ok {
		writeJSON(w, http.StatusNotFound, StateResponse{
			ErrorMessage: ctrl.Message(i18n.NoResult),
			State:        ctrl.Snapshot(),
		})
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

// controller - 요청 세션의 컨트롤러 (없으면 새로 만듦: 서버 재시작/세션 정리 이후)
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) *Controller {
	sessionID := sessionIDFromRequest(r)
	if sessionID != "" {
		if ctrl, ok := h.registry.Get(sessionID); ok {
			return ctrl
		}
	} else {
		sessionID = uuid.NewString()
	}
	setSessionCookie(w, sessionID)
	return h.registry.Reset(sessionID, h.catalog.Resolve(r.Header.Get("Accept-Language")))
}

func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
