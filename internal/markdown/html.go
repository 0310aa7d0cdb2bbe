package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// ToHTML конвертирует markdown-текст в HTML целиком.
// Используется для кэшированных историй, где чередование текста и
// иллюстраций уже зафиксировано в самом файле.
func ToHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return buf.String(), nil
}
