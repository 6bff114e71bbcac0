// Package client is a small HTTP client for the docport admin API,
// used by the docport CLI.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Document mirrors the server's document wire representation.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	PostedAt  time.Time `json:"postedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Published bool      `json:"published"`
}

// Client talks to a docport server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given server. token may be empty for login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Login exchanges credentials for a session token.
func (c *Client) Login(username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.http.Post(c.baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("login failed: %s", result.Message)
	}
	return result.Token, nil
}

// Upload submits a PDF with title and expiry date.
func (c *Client) Upload(title, expiresAt, filePath string) (*Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	if err := writer.WriteField("title", title); err != nil {
		return nil, err
	}
	if err := writer.WriteField("expiresAt", expiresAt); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var doc Document
	if err := c.do(req, http.StatusCreated, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List fetches the unfiltered admin document list.
func (c *Client) List() ([]Document, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/admin/files", nil)
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := c.do(req, http.StatusOK, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document by ID.
func (c *Client) Delete(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/delete/"+id, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

// do sends the request with the session token and decodes the response
// into out when the status matches. Other statuses become errors carrying
// the server's error text.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
