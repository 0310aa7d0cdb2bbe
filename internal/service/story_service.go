package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"picturebook-server/internal/domain"
	"picturebook-server/internal/markdown"
	"picturebook-server/internal/repository"
)

// StoryGenerator абстрагирует генератор историй для StoryService.
type StoryGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.StoryArtifact, error)
}

// StoryService отвечает на запрос истории: сначала ищет готовый артефакт,
// при промахе запускает генерацию и собирает ответ из текста и иллюстраций.
type StoryService struct {
	repo *repository.ArtifactRepository
	gen  StoryGenerator
}

// NewStoryService создает новый экземпляр сервиса историй.
func NewStoryService(repo *repository.ArtifactRepository, gen StoryGenerator) *StoryService {
	return &StoryService{repo: repo, gen: gen}
}

// StoryResult — собранный ответ на запрос истории.
type StoryResult struct {
	HTML        string
	Images      []string
	MarkdownURL string
	RawMarkdown string
	PlainText   string
	Cached      bool
}

// GetStory возвращает историю по теме: из кэша артефактов, если файл с такой
// темой уже есть, иначе через запуск внешней генерации.
func (s *StoryService) GetStory(ctx context.Context, req domain.GenerationRequest) (*StoryResult, error) {
	if strings.TrimSpace(req.Theme) == "" {
		return nil, domain.ErrEmptyTheme
	}

	if art, err := s.repo.ResolveStory(req.Theme); err != nil {
		return nil, err
	} else if art != nil {
		log.Info().Str("theme", req.Theme).Str("path", art.Path).Msg("serving cached story")
		return s.buildCachedResult(art, req.Theme)
	}

	art, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.buildFreshResult(art, req.Theme)
}

// buildCachedResult собирает ответ для уже существующей истории.
// Кэшированный файл конвертируется в HTML целиком: порядок текста и
// иллюстраций в нем уже зафиксирован.
func (s *StoryService) buildCachedResult(art *domain.StoryArtifact, theme string) (*StoryResult, error) {
	html, err := markdown.ToHTML(art.RawText)
	if err != nil {
		return nil, fmt.Errorf("не удалось преобразовать историю в HTML: %w", err)
	}
	images, err := s.repo.ImagesForStory(art, theme)
	if err != nil {
		return nil, err
	}
	return &StoryResult{
		HTML:        html,
		Images:      imageURLs(images),
		MarkdownURL: downloadURL(art.Path),
		RawMarkdown: art.RawText,
		PlainText:   markdown.ExtractPlainText(art.RawText),
		Cached:      true,
	}, nil
}

// buildFreshResult собирает ответ для только что сгенерированной истории,
// чередуя блоки текста и иллюстрации структурным рендерером.
func (s *StoryService) buildFreshResult(art *domain.StoryArtifact, theme string) (*StoryResult, error) {
	images, err := s.repo.ImagesForStory(art, theme)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", art.Path).Int("images", len(images)).Msg("story generated")

	byBasename := make(map[string]string, len(images))
	for _, img := range images {
		byBasename[img.Basename] = viewImageURL(img.Path)
	}
	doc := markdown.RenderStory(art.RawText, byBasename)

	return &StoryResult{
		HTML:        doc.HTML(),
		Images:      imageURLs(images),
		MarkdownURL: downloadURL(art.Path),
		RawMarkdown: art.RawText,
		PlainText:   markdown.ExtractPlainText(art.RawText),
		Cached:      false,
	}, nil
}

// imageURLs превращает иллюстрации в ссылки на маршрут просмотра.
func imageURLs(images []domain.ImageAsset) []string {
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, viewImageURL(img.Path))
	}
	return urls
}

func viewImageURL(path string) string {
	return "/view_image?path=" + path
}

func downloadURL(path string) string {
	return "/download?path=" + path
}
