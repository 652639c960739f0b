package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// OfficeService talks to the long-lived LibreOffice conversion sidecar. One
// instance is shared by every worker unit; the http.Client is safe for
// concurrent use and each request carries its own deadline.
type OfficeService struct {
	baseURL string
	client  *http.Client
}

func NewOfficeService(baseURL string) *OfficeService {
	return &OfficeService{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

type decodeResponse struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
	Hash    string `json:"hash"`
	Error   string `json:"error"`
}

type encodeRequest struct {
	HTML     string `json:"html"`
	Template string `json:"template,omitempty"`
}

// Healthy probes the sidecar's health endpoint. Used by the daemon's startup
// log only; the strategy chain treats any request failure as unavailability.
func (o *OfficeService) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("office service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("office service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// DocxToHTML uploads the document and returns the sidecar's rendered HTML.
func (o *OfficeService) DocxToHTML(ctx context.Context, input []byte, filename string) ([]byte, error) {
	if filename == "" {
		filename = "document.docx"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(input); err != nil {
		return nil, fmt.Errorf("failed to copy document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/convert/docx-to-html", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("office service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("office service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var decoded decodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to parse office service response: %w", err)
	}
	if !decoded.Success {
		reason := decoded.Error
		if reason == "" {
			reason = "conversion failed"
		}
		return nil, fmt.Errorf("office service rejected document: %s", reason)
	}

	return []byte(decoded.HTML), nil
}

// HTMLToDocx sends HTML (plus an optional template name the sidecar resolves
// to a .dotx) and returns the produced DOCX bytes.
func (o *OfficeService) HTMLToDocx(ctx context.Context, html string, template string) ([]byte, error) {
	payload, err := json.Marshal(encodeRequest{HTML: html, Template: template})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/convert/html-to-docx", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("office service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("office service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read produced document: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("office service returned an empty document")
	}

	return data, nil
}
