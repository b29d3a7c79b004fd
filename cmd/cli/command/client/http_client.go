package client

// http_client.go = handles HTTP client functionality for the geminichat CLI.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/http-api/dto"

	"github.com/gabriel-vasile/mimetype"
)

// defines the HTTP client structure and methods
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// constructor for HTTP client
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: apiURL,
		httpClient: &http.Client{
			// older page loads wait for the simulated latency
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) roomURL(roomID, suffix string) string {
	return c.baseURL + "/api/chatrooms/" + url.PathEscape(roomID) + suffix
}

// GetHistory fetches the visible window of a room
func (c *HTTPClient) GetHistory(roomID string) (*dto.WindowResponse, error) {
	var result dto.WindowResponse
	if err := c.do(http.MethodGet, c.roomURL(roomID, "/messages"), nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LoadOlder reveals one older page and returns the grown window
func (c *HTTPClient) LoadOlder(roomID string) (*dto.WindowResponse, error) {
	var result dto.WindowResponse
	if err := c.do(http.MethodPost, c.roomURL(roomID, "/messages/older"), nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage posts a user message. A nil response with nil error means the
// server ignored blank input.
func (c *HTTPClient) SendMessage(roomID string, request *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.roomURL(roomID, "/messages"), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusCreated:
		var result dto.SendMessageResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, err
		}
		return &result, nil
	default:
		return nil, apiError(resp)
	}
}

// ClearHistory deletes the stored log; the room comes back with its seed
func (c *HTTPClient) ClearHistory(roomID string) (*dto.WindowResponse, error) {
	var result dto.WindowResponse
	if err := c.do(http.MethodDelete, c.roomURL(roomID, "/messages"), nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CloseSession tears down the server side view of a room
func (c *HTTPClient) CloseSession(roomID string) error {
	return c.do(http.MethodDelete, c.roomURL(roomID, "/session"), nil, http.StatusNoContent, nil)
}

func (c *HTTPClient) do(method, target string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

// ImageDataURL reads an image file into the data URL form the API accepts
func ImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > dto.MaxImageBytes {
		return "", dto.ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") && !mt.Is("image/gif") && !mt.Is("image/webp") {
		return "", fmt.Errorf("%w: %s is %s", dto.ErrNotImage, path, mt.String())
	}
	return dto.FormatDataURL(&chatroom.Attachment{MimeType: mt.String(), Data: data}), nil
}
