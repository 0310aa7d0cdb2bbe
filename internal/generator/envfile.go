package generator

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"picturebook-server/internal/domain"
)

var wordSplitRe = regexp.MustCompile(`[,\s]+`)

// writeSideChannel передает настройки запроса внешнему генератору.
// Генератор читает собственную конфигурацию при старте, поэтому язык и
// запрещенные слова уходят через общий .env-файл, а тема — через входной
// файл. Семантика last-writer-wins, версионирования нет.
func (g *Generator) writeSideChannel(req domain.GenerationRequest) error {
	env, err := godotenv.Read(g.cfg.EnvFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read generator env file: %w", err)
		}
		env = map[string]string{}
	}

	env["OUTPUT_LANG"] = string(req.Language)

	if len(req.ForbiddenWords) > 0 {
		current := env["FORBIDDEN_KEYWORDS"]
		if current == "" {
			current = g.cfg.ForbiddenWords
		}
		env["FORBIDDEN_KEYWORDS"] = mergeForbiddenWords(current, req.ForbiddenWords)
	}

	if err := godotenv.Write(env, g.cfg.EnvFile); err != nil {
		return fmt.Errorf("failed to write generator env file: %w", err)
	}

	if err := os.WriteFile(g.cfg.ThemeFile, []byte(req.Theme), 0o644); err != nil {
		return fmt.Errorf("failed to write theme file: %w", err)
	}
	return nil
}

// mergeForbiddenWords объединяет текущий список запрещенных слов со словами
// запроса. Результат отсортирован, чтобы содержимое файла было детерминированным.
func mergeForbiddenWords(current string, extra []string) string {
	set := map[string]struct{}{}
	for _, w := range strings.Split(current, ",") {
		if w = strings.TrimSpace(w); w != "" {
			set[w] = struct{}{}
		}
	}
	for _, w := range extra {
		if w = strings.TrimSpace(w); w != "" {
			set[w] = struct{}{}
		}
	}
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Strings(words)
	return strings.Join(words, ",")
}

// SplitWords разбивает пользовательский список запрещенных слов по запятым
// и пробелам.
func SplitWords(s string) []string {
	var words []string
	for _, w := range wordSplitRe.Split(s, -1) {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
