package domain

import "errors"

// Ошибки уровня домена. Слой delivery отображает их в HTTP-статусы.
var (
	// ErrEmptyTheme — в запросе не указана тема истории.
	ErrEmptyTheme = errors.New("тема не может быть пустой")

	// ErrEmptyText — в запросе на озвучку не передан текст.
	ErrEmptyText = errors.New("текст не может быть пустым")

	// ErrGenerationTimeout — внешний генератор не создал файл за отведенное время.
	// Запрос можно повторить позже.
	ErrGenerationTimeout = errors.New("генерация истории превысила лимит ожидания")

	// ErrNoStoryFound — в каталоге историй нет ни одного подходящего файла.
	ErrNoStoryFound = errors.New("файлы историй не найдены")

	// ErrEmptyStory — сгенерированный файл существует, но не содержит текста.
	// Отличается от таймаута: генератор отработал, а результат пуст.
	ErrEmptyStory = errors.New("сгенерированная история пуста")

	// ErrMissingCredentials — не настроены ключи доступа к сервису синтеза речи.
	ErrMissingCredentials = errors.New("ключи Baidu API не настроены (BAIDU_API_KEY, BAIDU_SECRET_KEY)")

	// ErrNoAudioProduced — ни длинный, ни короткий путь синтеза не дали аудиоданных.
	ErrNoAudioProduced = errors.New("не удалось получить аудиоданные ни одним из способов синтеза")
)
