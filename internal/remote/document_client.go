package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/ekyc/internal/document"
)

// DocumentServiceClient talks to the document processing service over HTTP.
// It implements document.Client.
type DocumentServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDocumentServiceClient returns a ready-to-use client for the document
// processing service.
func NewDocumentServiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *DocumentServiceClient {
	return &DocumentServiceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("document_client"),
	}
}

type extractRequest struct {
	CardSide document.Side `json:"card_side"`
	Image    []byte        `json:"image"`
}

// Extract submits one side of the document for field extraction. A non-2xx
// response with a detail payload is the service rejecting the image and maps
// to *document.RejectionError; transport failures surface as plain errors.
func (c *DocumentServiceClient) Extract(ctx context.Context, imageBytes []byte, side document.Side) (document.Fields, error) {
	body, err := json.Marshal(extractRequest{CardSide: side, Image: imageBytes})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	url := fmt.Sprintf("%s/process-id-card", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("document service unreachable", zap.String("side", string(side)), zap.Error(err))
		return nil, fmt.Errorf("failed to reach document service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason := decodeDetail(resp.Body)
		if reason == "" {
			reason = fmt.Sprintf("document service returned status %d", resp.StatusCode)
		}
		c.logger.Info("document service rejected image", zap.String("side", string(side)), zap.String("reason", reason))
		return nil, &document.RejectionError{Reason: reason}
	}

	var fields document.Fields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}
	return fields, nil
}

// decodeDetail pulls the service's human-readable rejection reason out of an
// error response body.
func decodeDetail(r io.Reader) string {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ""
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return string(bytes.TrimSpace(raw))
}
