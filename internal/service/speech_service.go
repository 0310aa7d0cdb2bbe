package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"picturebook-server/internal/baidu"
	"picturebook-server/internal/config"
	"picturebook-server/internal/domain"
	"picturebook-server/internal/markdown"
	"picturebook-server/internal/repository"
)

// SpeechService превращает текст истории в аудиофайл. Предпочтителен
// длинный (асинхронный) синтез; при любой его неудаче сервис переходит на
// короткий синтез по фрагментам, так что у запроса всегда есть второй шанс.
type SpeechService struct {
	client *baidu.Client
	repo   *repository.ArtifactRepository
	cfg    config.SpeechConfig
}

// NewSpeechService создает новый экземпляр сервиса озвучки.
func NewSpeechService(client *baidu.Client, repo *repository.ArtifactRepository, cfg config.SpeechConfig) *SpeechService {
	return &SpeechService{client: client, repo: repo, cfg: cfg}
}

// Synthesize озвучивает текст и возвращает имя сохраненного аудиофайла.
// Если прямая попытка не дала аудио, текст берется заново из самой свежей
// истории на диске и попытка повторяется один раз.
func (s *SpeechService) Synthesize(ctx context.Context, text string, lang domain.Language) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyText
	}

	data, err := s.synthesize(ctx, text, lang)
	if err != nil && !errors.Is(err, domain.ErrNoAudioProduced) {
		return "", err
	}
	if len(data) == 0 {
		// Запасной источник текста: свежайшая история на диске.
		log.Warn().Msg("synthesis produced no audio, retrying with plain text of the latest story")
		art, artErr := s.repo.LatestStory()
		if artErr != nil {
			return "", fmt.Errorf("%w: %s", domain.ErrNoAudioProduced, artErr)
		}
		data, err = s.synthesize(ctx, markdown.ExtractPlainText(art.RawText), lang)
		if err != nil {
			return "", err
		}
	}

	filename, err := s.repo.SaveAudio(data)
	if err != nil {
		return "", err
	}
	log.Info().Str("file", filename).Int("bytes", len(data)).Msg("audio artifact written")
	return filename, nil
}

// synthesize выполняет один проход конвейера синтеза:
// токен -> нормализация -> длинный путь -> фолбэк по фрагментам.
func (s *SpeechService) synthesize(ctx context.Context, text string, lang domain.Language) ([]byte, error) {
	// Без токена не работает ни один режим — ошибка терминальна.
	if _, err := s.client.Token(ctx); err != nil {
		return nil, fmt.Errorf("не удалось получить access token: %w", err)
	}

	normalized := s.normalize(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: после удаления разметки текст пуст", domain.ErrNoAudioProduced)
	}

	data, err := s.synthesizeLong(ctx, normalized, lang)
	if err != nil {
		// Провал длинного пути не фатален: остается короткий синтез.
		log.Warn().Err(err).Msg("long synthesis failed, falling back to chunked short synthesis")
	}
	if len(data) > 0 {
		return data, nil
	}

	data = s.synthesizeChunks(ctx, normalized, lang)
	if len(data) == 0 {
		return nil, domain.ErrNoAudioProduced
	}
	return data, nil
}

// normalize убирает из текста ссылки на изображения и обрезает его до
// лимита длинного синтеза. Именно обрезает, а не делит: хвост сверх
// лимита отбрасывается.
func (s *SpeechService) normalize(text string) string {
	text = markdown.StripImages(text)
	runes := []rune(text)
	if len(runes) > s.cfg.MaxTextLen {
		log.Warn().Int("len", len(runes)).Int("limit", s.cfg.MaxTextLen).Msg("text exceeds long synthesis limit, truncating")
		runes = runes[:s.cfg.MaxTextLen]
	}
	return string(runes)
}

// synthesizeLong проводит задачу длинного синтеза от создания до скачивания
// результата. Любой исход, кроме успешного скачивания, означает переход на
// короткий путь; задача никогда не пересоздается и скачивание не повторяется.
func (s *SpeechService) synthesizeLong(ctx context.Context, text string, lang domain.Language) ([]byte, error) {
	taskID, err := s.client.CreateLongTask(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task_id", taskID).Msg("long synthesis task created")

	for attempt := 1; attempt <= s.cfg.MaxPollTries; attempt++ {
		info, err := s.client.QueryTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch info.TaskStatus {
		case baidu.TaskCreated, baidu.TaskRunning:
			// Продолжаем опрос.
		case baidu.TaskSuccess:
			if info.TaskResult.SpeechURL == "" {
				return nil, fmt.Errorf("задача завершилась без ссылки на аудио")
			}
			return s.client.Download(ctx, info.TaskResult.SpeechURL)
		case baidu.TaskFailed:
			return nil, fmt.Errorf("задача синтеза провалилась: code %d: %s",
				info.TaskResult.ErrorCode, info.TaskResult.ErrorMsg)
		default:
			return nil, fmt.Errorf("неизвестный статус задачи синтеза: %s", info.TaskStatus)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
	return nil, fmt.Errorf("задача синтеза не завершилась за %d опросов", s.cfg.MaxPollTries)
}

// synthesizeChunks озвучивает текст по фрагментам коротким синтезом и
// склеивает результат в порядке фрагментов. Неудачный фрагмент
// пропускается, а не роняет весь запрос: частичная озвучка лучше пустой.
func (s *SpeechService) synthesizeChunks(ctx context.Context, text string, lang domain.Language) []byte {
	chunks := SplitChunks(text, s.cfg.ChunkSize)
	log.Info().Int("chunks", len(chunks)).Msg("starting chunked short synthesis")

	var audio []byte
	for i, chunk := range chunks {
		data, err := s.client.SynthesizeShort(ctx, chunk, lang)
		if err != nil {
			log.Warn().Err(err).Int("chunk", i+1).Int("total", len(chunks)).Msg("chunk synthesis failed, skipping")
			continue
		}
		audio = append(audio, data...)
	}
	return audio
}

// SplitChunks делит текст на фрагменты фиксированного размера в рунах,
// сохраняя порядок. Конкатенация фрагментов равна исходному тексту.
func SplitChunks(text string, size int) []string {
	if size <= 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
