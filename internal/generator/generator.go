// Package generator запускает внешний процесс генерации истории и ждет
// появления результата на диске. Процесс — черный ящик: он сам читает
// конфигурацию, сам пишет файлы, а его код выхода ничего не значит.
package generator

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"picturebook-server/internal/config"
	"picturebook-server/internal/domain"
	"picturebook-server/internal/repository"
)

// Generator управляет жизненным циклом одной генерации: передача настроек,
// запуск процесса, опрос каталога до появления нового файла истории.
type Generator struct {
	repo     *repository.ArtifactRepository
	launcher Launcher
	cfg      config.GeneratorConfig

	// flights гарантирует не более одной активной генерации на тему:
	// параллельные запросы одной темы разделяют общий результат.
	flights singleflight.Group
}

// New создает генератор.
func New(repo *repository.ArtifactRepository, launcher Launcher, cfg config.GeneratorConfig) *Generator {
	return &Generator{repo: repo, launcher: launcher, cfg: cfg}
}

// Generate запускает генерацию истории по теме и блокируется до появления
// файла, истечения лимита ожидания или отмены ctx. Параллельные вызовы с
// одинаковой темой сливаются в один запуск внешнего процесса.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.StoryArtifact, error) {
	v, err, shared := g.flights.Do(req.Theme, func() (interface{}, error) {
		return g.generate(ctx, req)
	})
	if shared {
		log.Info().Str("theme", req.Theme).Msg("joined in-flight generation for the same theme")
	}
	if err != nil {
		return nil, err
	}
	return v.(*domain.StoryArtifact), nil
}

func (g *Generator) generate(ctx context.Context, req domain.GenerationRequest) (*domain.StoryArtifact, error) {
	// Состояние каталога до запуска: новым считается файл не из этого набора.
	before, err := g.repo.SnapshotStories()
	if err != nil {
		return nil, err
	}

	if err := g.writeSideChannel(req); err != nil {
		return nil, err
	}

	if err := g.launcher.Launch(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	log.Info().
		Str("theme", req.Theme).
		Dur("max_wait", g.cfg.MaxWait).
		Msg("waiting for story file to appear")

	path, err := g.waitForStory(ctx, req.Theme, before, start)
	if err != nil {
		return nil, err
	}
	return g.repo.ReadStory(path)
}

// waitForStory опрашивает каталог историй до появления подходящего файла.
// Побеждает первое совпадение: либо любой новый файл, либо файл с темой
// в имени, измененный после старта ожидания.
func (g *Generator) waitForStory(ctx context.Context, theme string, before map[string]time.Time, start time.Time) (string, error) {
	deadline := start.Add(g.cfg.MaxWait)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.cfg.PollInterval):
		}

		current, err := g.repo.SnapshotStories()
		if err != nil {
			return "", err
		}

		// Любой файл, которого не было до запуска; при нескольких — самый свежий.
		var newest string
		var newestMod time.Time
		for path, mod := range current {
			if _, existed := before[path]; existed {
				continue
			}
			if newest == "" || mod.After(newestMod) {
				newest = path
				newestMod = mod
			}
		}
		if newest != "" {
			log.Info().Str("path", newest).Msg("new story file detected")
			return newest, nil
		}

		// Файл с темой в имени, появившийся или измененный после старта.
		themePaths, err := g.repo.ThemeStories(theme)
		if err != nil {
			return "", err
		}
		for _, p := range themePaths {
			mod, ok := current[p]
			if !ok {
				continue
			}
			if _, existed := before[p]; !existed || mod.After(start) {
				log.Info().Str("path", p).Msg("theme-matching story file detected")
				return p, nil
			}
		}
	}

	// Лимит исчерпан: последняя попытка найти хоть что-то по теме,
	// даже если файл старый.
	themePaths, err := g.repo.ThemeStories(theme)
	if err != nil {
		return "", err
	}
	if p := newestPath(themePaths, before); p != "" {
		log.Warn().Str("path", p).Msg("wait budget exhausted, using possibly stale theme-matching file")
		return p, nil
	}
	return "", domain.ErrGenerationTimeout
}

// newestPath выбирает самый свежий путь, опираясь на снапшоты и Stat.
func newestPath(paths []string, known map[string]time.Time) string {
	var newest string
	var newestMod time.Time
	for _, p := range paths {
		mod, ok := known[p]
		if !ok {
			// Файла не было в снапшоте — берем время из каталога.
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			mod = info.ModTime()
		}
		if newest == "" || mod.After(newestMod) {
			newest = p
			newestMod = mod
		}
	}
	return newest
}
