package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"picturebook-server/internal/config"
	"picturebook-server/internal/domain"
)

// ArtifactRepository обеспечивает доступ к артефактам на диске: историям и
// иллюстрациям, которые пишет внешний генератор, и аудиофайлам, которые
// пишет этот сервер. Истории и иллюстрации доступны только на чтение.
type ArtifactRepository struct {
	storyDir string
	imageDir string
	audioDir string
}

// NewArtifactRepository создает репозиторий и каталоги артефактов,
// если их еще нет.
func NewArtifactRepository(cfg config.StorageConfig) (*ArtifactRepository, error) {
	r := &ArtifactRepository{
		storyDir: cfg.StoryDir,
		imageDir: cfg.ImageDir,
		audioDir: cfg.AudioDir,
	}
	for _, dir := range []string{r.storyDir, r.imageDir, r.audioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return r, nil
}

// ResolveStory ищет уже сгенерированную историю по подстроке темы в имени
// файла. При нескольких совпадениях возвращается самая свежая по времени
// изменения. Возвращает nil без ошибки, если подходящей истории нет.
//
// Ключ кэша прагматичный, а не точный: две темы с общей подстрокой
// совпадают. Инвалидации нет — каталог чистится внешними средствами.
func (r *ArtifactRepository) ResolveStory(theme string) (*domain.StoryArtifact, error) {
	paths, err := r.ThemeStories(theme)
	if err != nil {
		return nil, err
	}
	newest := newestByModTime(paths)
	if newest == "" {
		return nil, nil
	}
	art, err := r.ReadStory(newest)
	if err != nil {
		// Нечитаемый или пустой файл не считается попаданием в кэш:
		// вызывающая сторона запустит новую генерацию.
		log.Warn().Err(err).Str("path", newest).Msg("cached story is unusable, falling back to generation")
		return nil, nil
	}
	return art, nil
}

// ThemeStories возвращает пути историй, имя файла которых содержит тему.
func (r *ArtifactRepository) ThemeStories(theme string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(r.storyDir, "*"+theme+"*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan story directory: %w", err)
	}
	return paths, nil
}

// SnapshotStories возвращает все истории каталога с временем изменения.
// Используется поллером для фиксации состояния "до" запуска генерации.
func (r *ArtifactRepository) SnapshotStories() (map[string]time.Time, error) {
	paths, err := filepath.Glob(filepath.Join(r.storyDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan story directory: %w", err)
	}
	snapshot := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			// Файл мог исчезнуть между Glob и Stat.
			continue
		}
		snapshot[p] = info.ModTime()
	}
	return snapshot, nil
}

// LatestStory возвращает самую свежую историю каталога.
// Возвращает ErrNoStoryFound, если историй нет вовсе.
func (r *ArtifactRepository) LatestStory() (*domain.StoryArtifact, error) {
	paths, err := filepath.Glob(filepath.Join(r.storyDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan story directory: %w", err)
	}
	newest := newestByModTime(paths)
	if newest == "" {
		return nil, domain.ErrNoStoryFound
	}
	return r.ReadStory(newest)
}

// ReadStory читает историю по пути. Файл с одними пробелами считается
// пустым результатом генерации (ErrEmptyStory).
func (r *ArtifactRepository) ReadStory(path string) (*domain.StoryArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, domain.ErrEmptyStory
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat story file: %w", err)
	}
	return &domain.StoryArtifact{
		Path:    path,
		ModTime: info.ModTime(),
		RawText: string(data),
	}, nil
}

// ImagesForStory находит иллюстрации истории. Сначала поиск идет по префиксу
// имени файла истории (часть до первого подчеркивания), затем, если ничего
// не нашлось, по подстроке темы. Результат отсортирован по имени файла,
// чтобы порядок был устойчивым.
func (r *ArtifactRepository) ImagesForStory(art *domain.StoryArtifact, theme string) ([]domain.ImageAsset, error) {
	paths, err := filepath.Glob(filepath.Join(r.imageDir, art.BasenamePrefix()+"*.png"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan image directory: %w", err)
	}
	if len(paths) == 0 {
		paths, err = filepath.Glob(filepath.Join(r.imageDir, "*"+theme+"*.png"))
		if err != nil {
			return nil, fmt.Errorf("failed to scan image directory: %w", err)
		}
	}
	sort.Strings(paths)

	assets := make([]domain.ImageAsset, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		assets = append(assets, domain.ImageAsset{Path: abs, Basename: filepath.Base(p)})
	}
	return assets, nil
}

// SaveAudio записывает аудиоданные в новый файл с уникальным именем и
// возвращает имя файла. Запись идет во временный файл с последующим
// атомарным переименованием, чтобы частично записанный файл никогда не
// был виден по конечному имени.
func (r *ArtifactRepository) SaveAudio(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrNoAudioProduced
	}
	filename := fmt.Sprintf("story_audio_%s.mp3", uuid.New())

	tmp, err := os.CreateTemp(r.audioDir, "audio-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.audioDir, filename)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move audio file into place: %w", err)
	}
	return filename, nil
}

// AudioPath возвращает путь к аудиофайлу по имени. Имя приводится к
// базовому, чтобы нельзя было выйти из каталога аудио.
func (r *ArtifactRepository) AudioPath(filename string) (string, error) {
	path := filepath.Join(r.audioDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}
	return path, nil
}

// ResolveImagePath проверяет, что запрошенный путь указывает на существующий
// файл внутри каталога иллюстраций, и возвращает его.
func (r *ArtifactRepository) ResolveImagePath(path string) (string, error) {
	return r.confine(r.imageDir, path)
}

// ResolveStoryPath проверяет, что запрошенный путь указывает на существующий
// файл внутри каталога историй, и возвращает его.
func (r *ArtifactRepository) ResolveStoryPath(path string) (string, error) {
	return r.confine(r.storyDir, path)
}

// confine нормализует путь и убеждается, что он лежит внутри dir.
func (r *ArtifactRepository) confine(dir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("путь не указан")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if absPath != absDir && !strings.HasPrefix(absPath, absDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("путь %s вне каталога артефактов", path)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("файл не найден: %w", err)
	}
	return absPath, nil
}

// newestByModTime возвращает путь с самым поздним временем изменения.
func newestByModTime(paths []string) string {
	var newest string
	var newestMod time.Time
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = p
			newestMod = info.ModTime()
		}
	}
	return newest
}
