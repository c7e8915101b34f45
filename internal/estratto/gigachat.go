package estratto

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"primanota/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GigaChatModel sends statement chunks to the GigaChat API as file
// attachments. The chat library has no attachment support in its message
// type, so this path speaks the REST API directly: upload the chunk PDF,
// then run a chat completion referencing the uploaded file.
type GigaChatModel struct {
	config      *config.GigaChatConfig
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	oauthURL    string
	accessToken string
}

func NewGigaChatModel(cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatModel, error) {
	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	m := &GigaChatModel{
		config:     cfg,
		logger:     logger,
		httpClient: httpClient,
		// GigaChat REST API
		// Documentation: https://developers.sber.ru/docs/ru/gigachat/api/main
		baseURL:  "https://gigachat.devices.sberbank.ru/api/v1",
		oauthURL: "https://ngw.devices.sberbank.ru:9443/api/v2/oauth",
	}

	token, err := m.fetchAccessToken(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	m.accessToken = token
	return m, nil
}

// ExtractChunk uploads one chunk PDF and asks for the JSON transaction
// array. Transport failures are mapped onto the retry taxonomy.
func (m *GigaChatModel) ExtractChunk(ctx context.Context, chunk Chunk) (*ModelResult, error) {
	fileID, err := m.uploadFile(ctx, chunk)
	if err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"model": "GigaChat",
		"messages": []map[string]interface{}{
			{
				"role":        "user",
				"content":     extractionPrompt,
				"attachments": [][]string{{fileID}},
			},
		},
		"temperature": 0.1,
		"stream":      false,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := completion.Choices[0]
	m.logger.Debug("Chunk extracted",
		zap.Int("chunk", chunk.Index),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("text_length", len(choice.Message.Content)),
	)
	return &ModelResult{
		RawText:      strings.TrimSpace(choice.Message.Content),
		FinishReason: choice.FinishReason,
	}, nil
}

func (m *GigaChatModel) uploadFile(ctx context.Context, chunk Chunk) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// "general" purpose makes the upload usable in completion requests.
	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}

	fileName := fmt.Sprintf("chunk-%d.pdf", chunk.Index)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {"application/pdf"},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired mid-import; refresh and let the adapter retry.
		token, tokenErr := m.fetchAccessToken(ctx)
		if tokenErr != nil {
			return "", fmt.Errorf("upload failed with 401, token refresh also failed: %w", tokenErr)
		}
		m.accessToken = token
		return "", ErrModelOverloaded
	}
	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		return "", err
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return uploadResp.ID, nil
}

// fetchAccessToken obtains an OAuth token. The API key is already
// Base64-encoded per the GigaChat docs.
func (m *GigaChatModel) fetchAccessToken(ctx context.Context) (string, error) {
	formData := url.Values{}
	formData.Set("scope", m.config.Scope)

	req, err := http.NewRequestWithContext(ctx, "POST", m.oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.New().String())
	req.Header.Set("Authorization", "Basic "+m.config.APIKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OAuth failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}
	return oauthResp.AccessToken, nil
}

// classifyStatus maps HTTP failures onto the adapter's retry taxonomy.
func classifyStatus(status int, body io.Reader) error {
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return ErrModelOverloaded
	default:
		bodyBytes, _ := io.ReadAll(io.LimitReader(body, 4096))
		return fmt.Errorf("extraction model answered %d: %s", status, string(bodyBytes))
	}
}
