package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"picturebook-server/internal/domain"
	"picturebook-server/internal/generator"
	"picturebook-server/internal/repository"
	"picturebook-server/internal/service"
)

// Handler представляет HTTP обработчик
type Handler struct {
	storyService  *service.StoryService
	speechService *service.SpeechService
	repo          *repository.ArtifactRepository
}

// New создает новый экземпляр обработчика
func New(storyService *service.StoryService, speechService *service.SpeechService, repo *repository.ArtifactRepository) *Handler {
	return &Handler{
		storyService:  storyService,
		speechService: speechService,
		repo:          repo,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/generate_story", h.GenerateStory).Methods("POST")
	router.HandleFunc("/generate_audio", h.GenerateAudio).Methods("POST")
	router.HandleFunc("/audio/{filename}", h.ServeAudio).Methods("GET")
	router.HandleFunc("/view_image", h.ViewImage).Methods("GET")
	router.HandleFunc("/download", h.DownloadFile).Methods("GET")
}

// generateStoryRequest — тело запроса генерации истории.
// forbidden_words — строка со словами через запятую или пробел.
type generateStoryRequest struct {
	Theme          string `json:"theme"`
	Language       string `json:"language"`
	ForbiddenWords string `json:"forbidden_words"`
}

// generateStoryResponse — тело ответа с готовой историей.
type generateStoryResponse struct {
	Text        string   `json:"text"`
	Images      []string `json:"images"`
	MarkdownURL string   `json:"markdown_url"`
	RawMarkdown string   `json:"raw_markdown"`
	PlainText   string   `json:"plain_text"`
	IsCached    bool     `json:"is_cached"`
}

// GenerateStory обрабатывает запрос на генерацию истории
func (h *Handler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	var req generateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("неверный формат запроса: %v", err))
		return
	}

	result, err := h.storyService.GetStory(r.Context(), domain.GenerationRequest{
		Theme:          req.Theme,
		Language:       domain.ParseLanguage(req.Language),
		ForbiddenWords: generator.SplitWords(req.ForbiddenWords),
	})
	if err != nil {
		h.respondStoryError(w, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, generateStoryResponse{
		Text:        result.HTML,
		Images:      result.Images,
		MarkdownURL: result.MarkdownURL,
		RawMarkdown: result.RawMarkdown,
		PlainText:   result.PlainText,
		IsCached:    result.Cached,
	})
}

// respondStoryError отображает доменные ошибки генерации в HTTP-статусы
func (h *Handler) respondStoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyTheme):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrGenerationTimeout):
		RespondWithError(w, http.StatusGatewayTimeout, "генерация истории превысила лимит ожидания, повторите запрос позже")
	default:
		log.Error().Err(err).Msg("story generation failed")
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("ошибка при генерации истории: %v", err))
	}
}

// generateAudioRequest — тело запроса на озвучку.
type generateAudioRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// generateAudioResponse — тело ответа с адресом аудиофайла.
type generateAudioResponse struct {
	AudioURL string `json:"audio_url"`
}

// GenerateAudio обрабатывает запрос на озвучку текста
func (h *Handler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req generateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("неверный формат запроса: %v", err))
		return
	}

	filename, err := h.speechService.Synthesize(r.Context(), req.Text, domain.ParseLanguage(req.Language))
	if err != nil {
		if errors.Is(err, domain.ErrEmptyText) {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("audio synthesis failed")
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("ошибка при генерации озвучки: %v", err))
		return
	}

	RespondWithJSON(w, http.StatusOK, generateAudioResponse{AudioURL: "/audio/" + filename})
}

// ServeAudio отдает аудиофайл по имени
func (h *Handler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	path, err := h.repo.AudioPath(filename)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "аудиофайл не найден")
		return
	}
	http.ServeFile(w, r, path)
}

// ViewImage отдает иллюстрацию по пути из каталога иллюстраций
func (h *Handler) ViewImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.repo.ResolveImagePath(r.URL.Query().Get("path"))
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "изображение не найдено")
		return
	}
	http.ServeFile(w, r, path)
}

// DownloadFile отдает markdown-файл истории как вложение
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	path, err := h.repo.ResolveStoryPath(r.URL.Query().Get("path"))
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "файл не найден")
		return
	}
	w.Header().Set("Content-Disposition", "attachment")
	http.ServeFile(w, r, path)
}

// RespondWithError отправляет ошибку в формате JSON
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// RespondWithJSON отправляет ответ в формате JSON
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
