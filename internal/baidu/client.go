// Package baidu реализует клиент REST API синтеза речи Baidu:
// обмен ключей на access token, длинный (асинхронный) синтез с опросом
// задачи и короткий (синхронный) синтез.
//
// Документация провайдера:
// токен   — https://cloud.baidu.com/doc/SPEECH/s/Em8snejw1
// длинный — https://cloud.baidu.com/doc/SPEECH/s/ulbxh8rbu
package baidu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"picturebook-server/internal/domain"
)

const defaultTimeout = 60 * time.Second

// Адреса API по умолчанию; в тестах переопределяются через Config.
const (
	DefaultTokenURL      = "https://aip.baidubce.com/oauth/2.0/token"
	DefaultLongCreateURL = "https://aip.baidubce.com/rpc/2.0/tts/v1/create"
	DefaultLongQueryURL  = "https://aip.baidubce.com/rpc/2.0/tts/v1/query"
	DefaultShortTextURL  = "https://tsn.baidu.com/text2audio"
)

// TaskStatus — статус задачи длинного синтеза в терминах провайдера.
type TaskStatus string

// Статусы задачи
const (
	TaskCreated TaskStatus = "Created"
	TaskRunning TaskStatus = "Running"
	TaskSuccess TaskStatus = "Success"
	TaskFailed  TaskStatus = "Failed"
)

// Config содержит настройки клиента.
type Config struct {
	APIKey    string
	SecretKey string

	// TokenTTL — срок жизни закэшированного токена. Провайдер выдает
	// токены надолго, но короткое окно упрощает восстановление после
	// инвалидации на стороне провайдера.
	TokenTTL time.Duration

	TokenURL      string
	LongCreateURL string
	LongQueryURL  string
	ShortTextURL  string
}

// Client — клиент API синтеза речи. Потокобезопасен: кэш токена защищен
// мьютексом и разделяется всеми запросами процесса.
type Client struct {
	cfg        Config
	httpClient *http.Client

	tokens *tokenCache
}

// NewClient создает новый экземпляр клиента.
func NewClient(cfg Config) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.LongCreateURL == "" {
		cfg.LongCreateURL = DefaultLongCreateURL
	}
	if cfg.LongQueryURL == "" {
		cfg.LongQueryURL = DefaultLongQueryURL
	}
	if cfg.ShortTextURL == "" {
		cfg.ShortTextURL = DefaultShortTextURL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	c.tokens = newTokenCache(c.exchangeToken, cfg.TokenTTL)
	return c
}

// Token возвращает действующий access token, при необходимости выполняя
// обмен ключей. Без настроенных ключей возвращает ErrMissingCredentials —
// это терминальная ошибка, без токена недоступен ни один режим синтеза.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.SecretKey == "" {
		return "", domain.ErrMissingCredentials
	}
	return c.tokens.get(ctx)
}

// tokenResponse — тело ответа на обмен ключей.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchangeToken выполняет обмен ключей на access token.
func (c *Client) exchangeToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	params.Set("client_id", c.cfg.APIKey)
	params.Set("client_secret", c.cfg.SecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange rejected: %s (%s)", tr.Error, tr.ErrorDescription)
	}
	return tr.AccessToken, nil
}

// createRequest — тело запроса создания задачи длинного синтеза.
// Параметры голоса фиксированы, варьируются только текст и язык.
type createRequest struct {
	Text           string `json:"text"`
	Format         string `json:"format"`
	Voice          int    `json:"voice"`
	Lang           string `json:"lang"`
	Speed          int    `json:"speed"`
	Pitch          int    `json:"pitch"`
	Volume         int    `json:"volume"`
	EnableSubtitle int    `json:"enable_subtitle"`
}

// createResponse — тело ответа на создание задачи.
type createResponse struct {
	TaskID    string `json:"task_id"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// TaskResult — результат завершенной задачи.
type TaskResult struct {
	SpeechURL string `json:"speech_url"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// TaskInfo — состояние задачи длинного синтеза.
type TaskInfo struct {
	TaskID     string     `json:"task_id"`
	TaskStatus TaskStatus `json:"task_status"`
	TaskResult TaskResult `json:"task_result"`
}

// queryResponse — тело ответа на опрос задач.
type queryResponse struct {
	ErrorCode int        `json:"error_code"`
	ErrorMsg  string     `json:"error_msg"`
	TasksInfo []TaskInfo `json:"tasks_info"`
}

// CreateLongTask создает задачу длинного синтеза и возвращает ее
// идентификатор. Структурная ошибка в ответе означает провал длинного
// пути: задача не пересоздается, вызывающая сторона уходит в фолбэк.
// При сигнале о недействительном токене кэш сбрасывается и создание
// повторяется один раз с новым токеном.
func (c *Client) CreateLongTask(ctx context.Context, text string, lang domain.Language) (string, error) {
	taskID, err := c.createLongTask(ctx, text, lang)
	if err != nil && isInvalidToken(err) {
		c.tokens.invalidate()
		return c.createLongTask(ctx, text, lang)
	}
	return taskID, err
}

func (c *Client) createLongTask(ctx context.Context, text string, lang domain.Language) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(createRequest{
		Text:           text,
		Format:         "mp3-16k",
		Voice:          0,
		Lang:           string(lang),
		Speed:          5,
		Pitch:          5,
		Volume:         5,
		EnableSubtitle: 0,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal create request: %w", err)
	}

	var cr createResponse
	if err := c.postJSON(ctx, c.cfg.LongCreateURL, token, body, &cr); err != nil {
		return "", fmt.Errorf("long synthesis task creation failed: %w", err)
	}
	if cr.ErrorCode != 0 {
		return "", fmt.Errorf("long synthesis task rejected: code %d: %s", cr.ErrorCode, cr.ErrorMsg)
	}
	if cr.TaskID == "" {
		return "", fmt.Errorf("long synthesis task creation returned no task id")
	}
	return cr.TaskID, nil
}

// QueryTask возвращает текущее состояние задачи длинного синтеза.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*TaskInfo, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string][]string{"task_ids": {taskID}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %w", err)
	}

	var qr queryResponse
	if err := c.postJSON(ctx, c.cfg.LongQueryURL, token, body, &qr); err != nil {
		return nil, fmt.Errorf("long synthesis task query failed: %w", err)
	}
	if qr.ErrorCode != 0 {
		return nil, fmt.Errorf("long synthesis task query rejected: code %d: %s", qr.ErrorCode, qr.ErrorMsg)
	}
	if len(qr.TasksInfo) == 0 {
		return nil, fmt.Errorf("long synthesis task query returned no task info")
	}
	return &qr.TasksInfo[0], nil
}

// Download скачивает готовый аудиофайл по ссылке из результата задачи.
func (c *Client) Download(ctx context.Context, speechURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, speechURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech payload: %w", err)
	}
	return data, nil
}

// shortErrorResponse — тело ответа короткого синтеза при ошибке.
type shortErrorResponse struct {
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
}

// SynthesizeShort выполняет синхронный синтез одного фрагмента текста.
// Провайдер возвращает либо аудиопоток, либо JSON с описанием ошибки;
// различаются они по Content-Type.
func (c *Client) SynthesizeShort(ctx context.Context, text string, lang domain.Language) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("tok", token)
	params.Set("tex", url.QueryEscape(text))
	params.Set("cuid", "picture_book_server")
	params.Set("ctp", "1")
	params.Set("lan", string(lang))
	params.Set("spd", "5")
	params.Set("pit", "5")
	params.Set("vol", "5")
	params.Set("per", "4") // эмоциональный женский голос
	params.Set("aue", "3") // mp3

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ShortTextURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build short synthesis request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("short synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "audio") {
		var se shortErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&se); err != nil {
			return nil, fmt.Errorf("short synthesis returned non-audio response (status %d)", resp.StatusCode)
		}
		return nil, fmt.Errorf("short synthesis rejected: code %d: %s", se.ErrNo, se.ErrMsg)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio payload: %w", err)
	}
	return data, nil
}

// postJSON выполняет POST с access token в строке запроса и разбирает
// JSON-ответ в out.
func (c *Client) postJSON(ctx context.Context, endpoint, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?access_token="+url.QueryEscape(token), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// isInvalidToken распознает сигнал провайдера о недействительном токене.
func isInvalidToken(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Access token invalid")
}
