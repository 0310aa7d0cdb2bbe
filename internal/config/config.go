package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Storage     StorageConfig
	Generator   GeneratorConfig
	Speech      SpeechConfig
	CORS        CORSConfig
}

// ServerConfig содержит конфигурацию HTTP-сервера
type ServerConfig struct {
	Port                int
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
	IdleTimeoutSeconds  int
}

// StorageConfig содержит пути к каталогам артефактов.
// Каталоги историй и иллюстраций наполняет внешний генератор,
// каталог аудио — этот сервер.
type StorageConfig struct {
	StoryDir string
	ImageDir string
	AudioDir string
}

// GeneratorConfig содержит настройки запуска и ожидания внешнего генератора
type GeneratorConfig struct {
	Python    string // интерпретатор для запуска скрипта генерации
	Script    string // путь к скрипту генерации
	WorkDir   string // рабочий каталог процесса генерации
	EnvFile   string // .env-файл, который генератор читает при старте
	ThemeFile string // файл, из которого генератор берет тему

	PollInterval time.Duration // период опроса каталога историй
	MaxWait      time.Duration // максимальное время ожидания нового файла

	// ForbiddenWords — базовый список запрещенных слов, к которому
	// добавляются слова из запроса.
	ForbiddenWords string
}

// SpeechConfig содержит настройки синтеза речи через Baidu
type SpeechConfig struct {
	APIKey    string
	SecretKey string

	MaxTextLen   int           // лимит длины текста для длинного синтеза, в рунах
	ChunkSize    int           // размер фрагмента для короткого синтеза, в рунах
	PollInterval time.Duration // период опроса задачи длинного синтеза
	MaxPollTries int           // максимальное число опросов задачи
	TokenTTL     time.Duration // срок жизни закэшированного access token
}

// CORSConfig содержит конфигурацию CORS
type CORSConfig struct {
	AllowedOrigins []string
}

// Load загружает конфигурацию из переменных окружения
func Load(env string) (Config, error) {
	cfg := Config{
		Environment: env,
		Server: ServerConfig{
			Port:                getEnvInt("SERVER_PORT", 5000),
			ReadTimeoutSeconds:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeoutSeconds: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeoutSeconds:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Storage: StorageConfig{
			StoryDir: getEnvStr("STORY_DIR", "generated_stories"),
			ImageDir: getEnvStr("IMAGE_DIR", "generated_images"),
			AudioDir: getEnvStr("AUDIO_DIR", "generated_audio"),
		},
		Generator: GeneratorConfig{
			Python:         getEnvStr("GENERATOR_PYTHON", "python"),
			Script:         getEnvStr("GENERATOR_SCRIPT", "story_generator_V2.py"),
			WorkDir:        getEnvStr("GENERATOR_WORKDIR", "."),
			EnvFile:        getEnvStr("GENERATOR_ENV_FILE", ".env"),
			ThemeFile:      getEnvStr("GENERATOR_THEME_FILE", "test.md"),
			PollInterval:   getEnvSeconds("GENERATOR_POLL_INTERVAL", 5),
			MaxWait:        getEnvSeconds("GENERATOR_MAX_WAIT", 45*60),
			ForbiddenWords: getEnvStr("FORBIDDEN_KEYWORDS", "nsfw,ugly,scary,horror,violent,blood,gore,disturbing"),
		},
		Speech: SpeechConfig{
			APIKey:       getEnvStr("BAIDU_API_KEY", ""),
			SecretKey:    getEnvStr("BAIDU_SECRET_KEY", ""),
			MaxTextLen:   getEnvInt("SPEECH_MAX_TEXT_LEN", 10000),
			ChunkSize:    getEnvInt("SPEECH_CHUNK_SIZE", 500),
			PollInterval: getEnvSeconds("SPEECH_POLL_INTERVAL", 3),
			MaxPollTries: getEnvInt("SPEECH_MAX_POLL_TRIES", 30),
			TokenTTL:     getEnvSeconds("SPEECH_TOKEN_TTL", 600),
		},
		CORS: CORSConfig{
			AllowedOrigins: strings.Split(getEnvStr("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5000"), ","),
		},
	}

	// Ключи Baidu намеренно не проверяются здесь: генерация историй
	// работает без них, а синтез речи сообщит об их отсутствии сам.
	return cfg, nil
}

// getEnvStr возвращает строковое значение из переменной окружения или значение по умолчанию
func getEnvStr(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt возвращает целочисленное значение из переменной окружения или значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvSeconds читает значение в секундах и возвращает time.Duration
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
