package generator

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"

	"picturebook-server/internal/config"
)

// Launcher запускает внешний процесс генерации истории.
type Launcher interface {
	// Launch стартует процесс и возвращается, не дожидаясь завершения.
	// Код выхода и вывод процесса не проверяются: результатом генерации
	// считается появление файла истории в каталоге.
	Launch(ctx context.Context) error
}

// ScriptLauncher запускает скрипт генерации как отдельный процесс.
type ScriptLauncher struct {
	Python  string
	Script  string
	WorkDir string
}

// NewScriptLauncher создает лаунчер из конфигурации генератора.
func NewScriptLauncher(cfg config.GeneratorConfig) *ScriptLauncher {
	return &ScriptLauncher{
		Python:  cfg.Python,
		Script:  cfg.Script,
		WorkDir: cfg.WorkDir,
	}
}

// Launch стартует скрипт генерации в режиме fire-and-forget.
// Процесс намеренно не привязан к ctx: отмена ожидания на нашей стороне
// не должна убивать генерацию, процесс нам не принадлежит.
func (l *ScriptLauncher) Launch(ctx context.Context) error {
	cmd := exec.Command(l.Python, l.Script)
	cmd.Dir = l.WorkDir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start generator process: %w", err)
	}
	log.Info().Str("script", l.Script).Int("pid", cmd.Process.Pid).Msg("generator process started")

	// Дожидаемся процесса в фоне, чтобы не накапливать зомби.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn().Err(err).Msg("generator process exited with error")
		}
	}()
	return nil
}
