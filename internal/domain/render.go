package domain

import "strings"

// BlockKind — тип блока в отрендеренном документе.
type BlockKind int

// Виды блоков
const (
	BlockHeading BlockKind = iota
	BlockCharacterList
	BlockVocabularyList
	BlockImage
	BlockParagraph
	BlockRule
)

// Block представляет один блок отображения: заголовок, список персонажей,
// словарик, иллюстрацию, абзац или разделитель.
type Block struct {
	Kind BlockKind
	// HTML — готовый HTML-фрагмент блока.
	HTML string
}

// RenderedDocument — упорядоченная последовательность блоков, построенная
// из текста истории и карты иллюстраций. Документ не изменяется на месте,
// при необходимости он строится заново.
type RenderedDocument struct {
	Blocks []Block
}

// HTML собирает блоки документа в единый HTML-фрагмент.
func (d *RenderedDocument) HTML() string {
	var sb strings.Builder
	sb.WriteString(`<div class="story-content">`)
	for _, b := range d.Blocks {
		sb.WriteString(b.HTML)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}
