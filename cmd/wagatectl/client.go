package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type qrResult struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
	Message   string `json:"message"`
}

type statusResult struct {
	SessionID    string  `json:"sessionId"`
	Status       string  `json:"status"`
	SessionToken *string `json:"session_token"`
	Message      string  `json:"message"`
}

type sendResult struct {
	Success    bool     `json:"success"`
	MessageIDs []string `json:"messageIds"`
	Results    []struct {
		Index     int    `json:"index"`
		MessageID string `json:"messageId"`
		Error     *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"results"`
}

type mediaRef struct {
	URL string `json:"url"`
}

// serverError is a non-2xx answer from the gateway.
type serverError struct {
	Status int
	Body   string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, strings.TrimSpace(e.Body))
}

func (c *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader, auth bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		if c.token == "" {
			return fmt.Errorf("a session token is required: pass --token or set WAGATE_TOKEN")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &serverError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *apiClient) GetQR(ctx context.Context) (*qrResult, error) {
	var out qrResult
	if err := c.do(ctx, http.MethodGet, "/get_qr", "", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Status(ctx context.Context, sessionID string) (*statusResult, error) {
	var out statusResult
	path := "/check_status?sessionId=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) SendJSON(ctx context.Context, phone, message string, mediaURLs []string) (*sendResult, error) {
	payload := map[string]any{
		"phoneNumber": phone,
		"message":     message,
	}
	if len(mediaURLs) > 0 {
		refs := make([]mediaRef, len(mediaURLs))
		for i, u := range mediaURLs {
			refs[i] = mediaRef{URL: u}
		}
		payload["media"] = refs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out sendResult
	if err := c.do(ctx, http.MethodPost, "/send_message", "application/json", bytes.NewReader(body), true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFile uploads a local file as multipart form data.
func (c *apiClient) SendFile(ctx context.Context, phone, message, filePath string) (*sendResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("phoneNumber", phone); err != nil {
		return nil, err
	}
	if message != "" {
		if err := mw.WriteField("message", message); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("media", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out sendResult
	if err := c.do(ctx, http.MethodPost, "/send_message", mw.FormDataContentType(), &buf, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendForm posts a url-encoded text message.
func (c *apiClient) SendForm(ctx context.Context, phone, message string) (*sendResult, error) {
	form := url.Values{"phoneNumber": {phone}, "message": {message}}
	var out sendResult
	err := c.do(ctx, http.MethodPost, "/send_message", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), true, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Logout(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), "", nil, true, nil)
}
