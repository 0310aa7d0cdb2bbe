package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturebook-server/internal/baidu"
	"picturebook-server/internal/config"
	"picturebook-server/internal/domain"
	"picturebook-server/internal/repository"
	"picturebook-server/internal/service"
)

// speechFixture поднимает фальшивый Baidu API и собирает вокруг него
// SpeechService с хранилищем во временном каталоге.
type speechFixture struct {
	repo     *repository.ArtifactRepository
	storage  config.StorageConfig
	service  *service.SpeechService
	server   *httptest.Server
	mux      *http.ServeMux
	provider *providerState
}

// providerState — настраиваемое поведение фальшивого провайдера.
type providerState struct {
	mu          sync.Mutex
	createText  string       // текст последнего запроса создания задачи
	createFail  bool         // отвечать структурной ошибкой на создание
	taskStatus  string       // статус, который вернет опрос
	shortFails  map[int]bool // номера фрагментов (с 1), которые провалятся
	shortCalls  int
	shortChunks []string     // успешно принятые фрагменты по порядку
}

func newSpeechFixture(t *testing.T, cfg config.SpeechConfig) *speechFixture {
	t.Helper()
	base := t.TempDir()
	storage := config.StorageConfig{
		StoryDir: filepath.Join(base, "stories"),
		ImageDir: filepath.Join(base, "images"),
		AudioDir: filepath.Join(base, "audio"),
	}
	repo, err := repository.NewArtifactRepository(storage)
	require.NoError(t, err)

	state := &providerState{taskStatus: "Success", shortFails: map[int]bool{}}
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 2592000})
	})
	mux.HandleFunc("/create", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		state.mu.Lock()
		state.createText = req.Text
		fail := state.createFail
		state.mu.Unlock()
		if fail {
			json.NewEncoder(w).Encode(map[string]interface{}{"error_code": 500, "error_msg": "boom"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"task_id": "task-1"})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		status := state.taskStatus
		state.mu.Unlock()
		task := map[string]interface{}{"task_id": "task-1", "task_status": status}
		if status == "Success" {
			task["task_result"] = map[string]interface{}{"speech_url": server.URL + "/speech.mp3"}
		}
		if status == "Failed" {
			task["task_result"] = map[string]interface{}{"error_code": 999, "error_msg": "task failed"}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"tasks_info": []interface{}{task}})
	})
	mux.HandleFunc("/speech.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mp3")
		w.Write([]byte("LONG-AUDIO"))
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		text, err := url.QueryUnescape(r.URL.Query().Get("tex"))
		require.NoError(t, err)
		state.mu.Lock()
		state.shortCalls++
		call := state.shortCalls
		fail := state.shortFails[call]
		if !fail {
			state.shortChunks = append(state.shortChunks, text)
		}
		state.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"err_no": 500, "err_msg": "chunk failed"})
			return
		}
		w.Header().Set("Content-Type", "audio/mp3")
		w.Write([]byte("[" + text + "]"))
	})

	client := baidu.NewClient(baidu.Config{
		APIKey:        "key",
		SecretKey:     "secret",
		TokenURL:      server.URL + "/token",
		LongCreateURL: server.URL + "/create",
		LongQueryURL:  server.URL + "/query",
		ShortTextURL:  server.URL + "/short",
	})

	return &speechFixture{
		repo:     repo,
		storage:  storage,
		service:  service.NewSpeechService(client, repo, cfg),
		server:   server,
		mux:      mux,
		provider: state,
	}
}

func defaultSpeechConfig() config.SpeechConfig {
	return config.SpeechConfig{
		MaxTextLen:   10000,
		ChunkSize:    500,
		PollInterval: time.Millisecond,
		MaxPollTries: 30,
	}
}

func (f *speechFixture) readAudio(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.storage.AudioDir, filename))
	require.NoError(t, err)
	return string(data)
}

func TestSynthesizeLongPath(t *testing.T) {
	f := newSpeechFixture(t, defaultSpeechConfig())

	filename, err := f.service.Synthesize(context.Background(), "你好，小朋友", domain.LanguageChinese)
	require.NoError(t, err)
	assert.Equal(t, "LONG-AUDIO", f.readAudio(t, filename))
	// Короткий путь не задействован.
	assert.Zero(t, f.provider.shortCalls)
}

func TestSynthesizeFallbackOnCreateError(t *testing.T) {
	f := newSpeechFixture(t, defaultSpeechConfig())
	f.provider.createFail = true

	filename, err := f.service.Synthesize(context.Background(), "короткий текст", domain.LanguageChinese)
	require.NoError(t, err)
	// Структурная ошибка создания задачи включает короткий путь,
	// а не роняет запрос.
	assert.Equal(t, "[короткий текст]", f.readAudio(t, filename))
}

func TestSynthesizeFallbackOnTaskFailure(t *testing.T) {
	f := newSpeechFixture(t, defaultSpeechConfig())
	f.provider.taskStatus = "Failed"

	filename, err := f.service.Synthesize(context.Background(), "текст", domain.LanguageChinese)
	require.NoError(t, err)
	assert.Equal(t, "[текст]", f.readAudio(t, filename))
}

func TestSynthesizeChunkingOrderAndSizes(t *testing.T) {
	cfg := defaultSpeechConfig()
	f := newSpeechFixture(t, cfg)
	f.provider.createFail = true

	// 1200 рун: ожидаем ровно три фрагмента 500/500/200 в исходном порядке.
	text := strings.Repeat("甲", 500) + strings.Repeat("乙", 500) + strings.Repeat("丙", 200)
	filename, err := f.service.Synthesize(context.Background(), text, domain.LanguageChinese)
	require.NoError(t, err)

	require.Len(t, f.provider.shortChunks, 3)
	assert.Len(t, []rune(f.provider.shortChunks[0]), 500)
	assert.Len(t, []rune(f.provider.shortChunks[1]), 500)
	assert.Len(t, []rune(f.provider.shortChunks[2]), 200)
	assert.Equal(t, text, strings.Join(f.provider.shortChunks, ""))

	audio := f.readAudio(t, filename)
	assert.True(t, strings.HasPrefix(audio, "["+strings.Repeat("甲", 500)+"]"))
	assert.True(t, strings.HasSuffix(audio, "["+strings.Repeat("丙", 200)+"]"))
}

func TestSynthesizeTruncation(t *testing.T) {
	cfg := defaultSpeechConfig()
	cfg.MaxTextLen = 10
	f := newSpeechFixture(t, cfg)

	_, err := f.service.Synthesize(context.Background(), strings.Repeat("字", 25), domain.LanguageChinese)
	require.NoError(t, err)
	// В длинный синтез уходит ровно лимит, хвост отброшен без деления.
	assert.Equal(t, strings.Repeat("字", 10), f.provider.createText)
}

func TestSynthesizePartialChunkFailure(t *testing.T) {
	cfg := defaultSpeechConfig()
	cfg.ChunkSize = 3
	f := newSpeechFixture(t, cfg)
	f.provider.createFail = true
	f.provider.shortFails[2] = true

	filename, err := f.service.Synthesize(context.Background(), "аб вг де", domain.LanguageChinese)
	require.NoError(t, err)
	// Второй фрагмент провалился и пропущен, остальные склеены по порядку.
	audio := f.readAudio(t, filename)
	assert.Equal(t, "[аб ][де]", audio)
}

func TestSynthesizeEmptyText(t *testing.T) {
	f := newSpeechFixture(t, defaultSpeechConfig())
	_, err := f.service.Synthesize(context.Background(), "   ", domain.LanguageChinese)
	assert.ErrorIs(t, err, domain.ErrEmptyText)
}

func TestSynthesizeMissingCredentials(t *testing.T) {
	base := t.TempDir()
	repo, err := repository.NewArtifactRepository(config.StorageConfig{
		StoryDir: filepath.Join(base, "s"),
		ImageDir: filepath.Join(base, "i"),
		AudioDir: filepath.Join(base, "a"),
	})
	require.NoError(t, err)

	svc := service.NewSpeechService(baidu.NewClient(baidu.Config{}), repo, defaultSpeechConfig())
	_, err = svc.Synthesize(context.Background(), "текст", domain.LanguageChinese)
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestSynthesizeRetriesWithLatestStoryText(t *testing.T) {
	cfg := defaultSpeechConfig()
	f := newSpeechFixture(t, cfg)
	f.provider.createFail = true
	// Первый проход: единственный фрагмент проваливается.
	f.provider.shortFails[1] = true

	// На диске лежит история — запасной источник текста.
	require.NoError(t, os.WriteFile(filepath.Join(f.storage.StoryDir, "story_1.md"), []byte("# 标题\n\n正文内容"), 0o644))

	filename, err := f.service.Synthesize(context.Background(), "исходный текст", domain.LanguageChinese)
	require.NoError(t, err)
	audio := f.readAudio(t, filename)
	assert.Contains(t, audio, "正文内容")
}

func TestSynthesizeTotalFailure(t *testing.T) {
	cfg := defaultSpeechConfig()
	f := newSpeechFixture(t, cfg)
	f.provider.createFail = true
	// Все короткие вызовы проваливаются, историй на диске нет.
	for i := 1; i <= 10; i++ {
		f.provider.shortFails[i] = true
	}

	_, err := f.service.Synthesize(context.Background(), "текст", domain.LanguageChinese)
	assert.ErrorIs(t, err, domain.ErrNoAudioProduced)
}

func TestSplitChunks(t *testing.T) {
	t.Run("exact and remainder", func(t *testing.T) {
		chunks := service.SplitChunks(strings.Repeat("x", 1200), 500)
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], 500)
		assert.Len(t, chunks[1], 500)
		assert.Len(t, chunks[2], 200)
	})

	t.Run("runes not bytes", func(t *testing.T) {
		chunks := service.SplitChunks("一二三四五", 2)
		assert.Equal(t, []string{"一二", "三四", "五"}, chunks)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, service.SplitChunks("", 500))
	})
}
