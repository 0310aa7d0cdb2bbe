package baidu_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturebook-server/internal/baidu"
	"picturebook-server/internal/domain"
)

// fakeProvider эмулирует HTTP-эндпоинты Baidu для тестов клиента.
type fakeProvider struct {
	mux            *http.ServeMux
	server         *httptest.Server
	// tokenExchanges нумерует выданные токены: "tok-1", "tok-2", ...
	tokenExchanges atomic.Int32
	createHandler  func(w http.ResponseWriter, r *http.Request)
	shortHandler   func(w http.ResponseWriter, r *http.Request)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{mux: http.NewServeMux()}
	f.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenExchanges.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("tok-%d", n),
			"expires_in":   2592000,
		})
	})
	f.mux.HandleFunc("/create", func(w http.ResponseWriter, r *http.Request) {
		if f.createHandler != nil {
			f.createHandler(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"task_id": "task-1"})
	})
	f.mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		if f.shortHandler != nil {
			f.shortHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mp3")
		w.Write([]byte("audio"))
	})
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) client() *baidu.Client {
	return baidu.NewClient(baidu.Config{
		APIKey:        "api-key",
		SecretKey:     "secret-key",
		TokenURL:      f.server.URL + "/token",
		LongCreateURL: f.server.URL + "/create",
		LongQueryURL:  f.server.URL + "/query",
		ShortTextURL:  f.server.URL + "/short",
	})
}

func TestTokenCaching(t *testing.T) {
	f := newFakeProvider(t)
	c := f.client()
	ctx := context.Background()

	tok1, err := c.Token(ctx)
	require.NoError(t, err)
	tok2, err := c.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	// Повторный вызов берет токен из кэша, обмен ключей один.
	assert.Equal(t, int32(1), f.tokenExchanges.Load())
}

func TestTokenMissingCredentials(t *testing.T) {
	c := baidu.NewClient(baidu.Config{})
	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestCreateLongTaskRetriesOnInvalidToken(t *testing.T) {
	f := newFakeProvider(t)
	f.createHandler = func(w http.ResponseWriter, r *http.Request) {
		// Первый токен провайдер считает недействительным.
		if r.URL.Query().Get("access_token") == "tok-1" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error_code": 3302,
				"error_msg":  "Access token invalid or no longer valid",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"task_id": "task-2"})
	}
	c := f.client()

	taskID, err := c.CreateLongTask(context.Background(), "текст", domain.LanguageChinese)
	require.NoError(t, err)
	assert.Equal(t, "task-2", taskID)
	// Кэш сброшен и токен получен заново ровно один раз.
	assert.Equal(t, int32(2), f.tokenExchanges.Load())
}

func TestCreateLongTaskStructuralError(t *testing.T) {
	f := newFakeProvider(t)
	f.createHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 500,
			"error_msg":  "internal error",
		})
	}
	c := f.client()

	_, err := c.CreateLongTask(context.Background(), "текст", domain.LanguageChinese)
	assert.ErrorContains(t, err, "code 500")
	// Повторного обмена ключей при обычной ошибке не происходит.
	assert.Equal(t, int32(1), f.tokenExchanges.Load())
}

func TestQueryTask(t *testing.T) {
	f := newFakeProvider(t)
	f.mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskIDs []string `json:"task_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"task-1"}, req.TaskIDs)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"tasks_info": []map[string]interface{}{{
				"task_id":     "task-1",
				"task_status": "Success",
				"task_result": map[string]interface{}{"speech_url": "http://example.com/a.mp3"},
			}},
		})
	})
	c := f.client()

	info, err := c.QueryTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, baidu.TaskSuccess, info.TaskStatus)
	assert.Equal(t, "http://example.com/a.mp3", info.TaskResult.SpeechURL)
}

func TestSynthesizeShort(t *testing.T) {
	t.Run("audio response", func(t *testing.T) {
		f := newFakeProvider(t)
		var gotText string
		f.shortHandler = func(w http.ResponseWriter, r *http.Request) {
			// Текст закодирован дважды: клиентом и сериализацией параметров.
			decoded, err := url.QueryUnescape(r.URL.Query().Get("tex"))
			require.NoError(t, err)
			gotText = decoded
			assert.Equal(t, "zh", r.URL.Query().Get("lan"))
			assert.Equal(t, "3", r.URL.Query().Get("aue"))
			w.Header().Set("Content-Type", "audio/mp3")
			w.Write([]byte("chunk-audio"))
		}
		c := f.client()

		data, err := c.SynthesizeShort(context.Background(), "小猫咪", domain.LanguageChinese)
		require.NoError(t, err)
		assert.Equal(t, "chunk-audio", string(data))
		assert.Equal(t, "小猫咪", gotText)
	})

	t.Run("non-audio response", func(t *testing.T) {
		f := newFakeProvider(t)
		f.shortHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"err_no": 502, "err_msg": "speech quota exceeded"})
		}
		c := f.client()

		_, err := c.SynthesizeShort(context.Background(), "текст", domain.LanguageChinese)
		assert.ErrorContains(t, err, "502")
	})
}
