package markdown

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"picturebook-server/internal/domain"
)

// Маркеры специальных блоков в тексте генератора
const (
	characterMarker  = "**角色：**"
	vocabularyMarker = "**词汇小课堂：**"
)

var (
	// titleRe намеренно без (?m): заголовком считается только блок,
	// целиком состоящий из одной строки `# ...`. Блок с заголовком
	// посреди текста рендерится как обычный абзац.
	titleRe     = regexp.MustCompile(`^# (.+)$`)
	imageRefRe  = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)
	characterRe = regexp.MustCompile(`- \*\*(.*?)\*\* - (.*)`)
	// Словарные статьи встречаются в двух вариантах: с пробелом перед
	// двоеточием и без него.
	vocabSpacedRe = regexp.MustCompile(`- \*\*(.*?)\*\* ：(.*)`)
	vocabTightRe  = regexp.MustCompile(`- \*\*(.*?)\*\*：(.*)`)
)

// RenderStory разбивает markdown-текст истории на блоки и строит документ,
// в котором текст и иллюстрации чередуются в исходном порядке.
//
// Единственное отступление от исходного порядка: блок со списком персонажей
// переносится сразу под заголовок истории, где бы он ни находился в тексте.
// Каждый непустой входной блок дает ровно один выходной блок.
//
// imagePaths отображает имя файла иллюстрации на путь, по которому ее
// отдает сервер; ссылки, отсутствующие в карте, остаются как есть.
func RenderStory(content string, imagePaths map[string]string) *domain.RenderedDocument {
	paragraphs := strings.Split(content, "\n\n")

	// Первый проход: ищем заголовок и блок с персонажами.
	titleIndex := -1
	characterIndex := -1
	for i, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if titleIndex == -1 && titleRe.MatchString(p) {
			titleIndex = i
		}
		if characterIndex == -1 && strings.HasPrefix(p, characterMarker) {
			characterIndex = i
		}
	}

	doc := &domain.RenderedDocument{}
	for i, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if m := titleRe.FindStringSubmatch(p); m != nil {
			doc.Blocks = append(doc.Blocks, domain.Block{
				Kind: domain.BlockHeading,
				HTML: fmt.Sprintf("<h1>%s</h1>", m[1]),
			})
			// Список персонажей переносится только под первый заголовок.
			if i == titleIndex && characterIndex != -1 {
				doc.Blocks = append(doc.Blocks, renderCharacterList(strings.TrimSpace(paragraphs[characterIndex])))
			}
			continue
		}

		// Блок персонажей уже отрендерен под заголовком — его исходное
		// место пропускаем. Без заголовка блок остается на месте.
		if i == characterIndex {
			if titleIndex == -1 {
				doc.Blocks = append(doc.Blocks, renderCharacterList(p))
			}
			continue
		}

		if strings.HasPrefix(p, vocabularyMarker) {
			doc.Blocks = append(doc.Blocks, renderVocabulary(p))
			continue
		}

		if p == "---" {
			doc.Blocks = append(doc.Blocks, domain.Block{Kind: domain.BlockRule, HTML: "<hr>"})
			continue
		}

		if strings.HasPrefix(p, "![") {
			if b, ok := renderImage(p, imagePaths); ok {
				doc.Blocks = append(doc.Blocks, b)
				continue
			}
		}

		doc.Blocks = append(doc.Blocks, domain.Block{
			Kind: domain.BlockParagraph,
			HTML: fmt.Sprintf(`<p class="story-paragraph">%s</p>`, renderEmphasis(p)),
		})
	}

	return doc
}

// renderCharacterList превращает блок со списком персонажей в HTML.
func renderCharacterList(p string) domain.Block {
	html := strings.ReplaceAll(p, characterMarker, "<strong>角色：</strong>")
	html = strings.ReplaceAll(html, vocabularyMarker, "<strong>词汇小课堂：</strong>")
	html = characterRe.ReplaceAllString(html, `<div class="character"><strong>$1</strong> - $2</div>`)
	html = vocabSpacedRe.ReplaceAllString(html, `<div class="vocabulary"><strong>$1</strong>：$2</div>`)
	html = vocabTightRe.ReplaceAllString(html, `<div class="vocabulary"><strong>$1</strong>：$2</div>`)
	return domain.Block{
		Kind: domain.BlockCharacterList,
		HTML: fmt.Sprintf(`<div class="description">%s</div>`, html),
	}
}

// renderVocabulary превращает блок словарика в HTML со статьями-определениями.
func renderVocabulary(p string) domain.Block {
	html := strings.ReplaceAll(p, vocabularyMarker, "<strong>词汇小课堂：</strong>")
	html = vocabSpacedRe.ReplaceAllString(html, `<div class="vocabulary"><strong>$1</strong>：$2</div>`)
	html = vocabTightRe.ReplaceAllString(html, `<div class="vocabulary"><strong>$1</strong>：$2</div>`)
	return domain.Block{
		Kind: domain.BlockVocabularyList,
		HTML: fmt.Sprintf(`<div class="description">%s</div>`, html),
	}
}

// renderImage разбирает ссылку на иллюстрацию и подставляет путь из карты
// иллюстраций. Если имени файла в карте нет, используется путь из текста.
func renderImage(p string, imagePaths map[string]string) (domain.Block, bool) {
	m := imageRefRe.FindStringSubmatch(p)
	if m == nil {
		return domain.Block{}, false
	}
	alt, path := m[1], m[2]
	if resolved, ok := imagePaths[filepath.Base(path)]; ok {
		path = resolved
	}
	return domain.Block{
		Kind: domain.BlockImage,
		HTML: fmt.Sprintf(`<div class="image-container"><img src="%s" alt="%s" class="story-image"></div>`, path, alt),
	}, true
}

// renderEmphasis преобразует выделение markdown в теги strong и em,
// не трогая остальные символы.
func renderEmphasis(p string) string {
	p = boldRe.ReplaceAllString(p, "<strong>$1</strong>")
	return italicRe.ReplaceAllString(p, "<em>$1</em>")
}
