package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Language — язык генерации истории и синтеза речи.
type Language string

// Поддерживаемые языки
const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
)

// ParseLanguage преобразует строку из запроса в Language.
// Неизвестные значения трактуются как китайский (значение по умолчанию генератора).
func ParseLanguage(s string) Language {
	if Language(strings.ToLower(strings.TrimSpace(s))) == LanguageEnglish {
		return LanguageEnglish
	}
	return LanguageChinese
}

// GenerationRequest представляет один запрос на генерацию истории.
// Создается на каждый HTTP-вызов и нигде не сохраняется.
type GenerationRequest struct {
	Theme          string
	Language       Language
	ForbiddenWords []string
}

// StoryArtifact представляет markdown-файл истории, записанный внешним генератором.
// Идентичность артефакта — путь в файловой системе; содержимое неизменяемо.
type StoryArtifact struct {
	Path    string
	ModTime time.Time
	RawText string
}

// BasenamePrefix возвращает часть имени файла до первого подчеркивания.
// Генератор именует иллюстрации по этому префиксу.
func (a *StoryArtifact) BasenamePrefix() string {
	base := filepath.Base(a.Path)
	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ImageAsset представляет иллюстрацию, связанную с историей.
type ImageAsset struct {
	Path     string
	Basename string
}

// AudioArtifact представляет файл озвучки.
// Артефакт считается валидным только при ненулевой длине.
type AudioArtifact struct {
	Path    string
	ByteLen int
}
