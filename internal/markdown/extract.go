package markdown

import (
	"regexp"
	"strings"
)

var (
	headingRe   = regexp.MustCompile(`(?m)^#+\s+`)
	imageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.*?)\*`)
	codeRe      = regexp.MustCompile("(?s)```.*?```")
	ruleRe      = regexp.MustCompile(`(?m)^-{3,}\s*$`)
	bulletRe    = regexp.MustCompile(`(?m)^(?:-\s+)+`)
	blankRunsRe = regexp.MustCompile(`\n\s*\n`)
)

// ExtractPlainText удаляет markdown-разметку и возвращает текст,
// пригодный для озвучки. Функция чистая и идемпотентная: повторное
// применение к собственному результату ничего не меняет.
func ExtractPlainText(text string) string {
	// Порядок важен: сначала изображения (их alt-текст не нужен),
	// затем ссылки (от них остается подпись).
	text = headingRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "")
	text = ruleRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripImages удаляет из текста только ссылки на изображения.
// Используется перед отправкой текста в синтез речи.
func StripImages(text string) string {
	return imageRe.ReplaceAllString(text, "")
}
