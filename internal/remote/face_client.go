package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/ekyc/internal/face"
)

// FaceServiceClient talks to the face service over HTTP. It implements
// face.Client.
type FaceServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFaceServiceClient returns a ready-to-use client for the face service.
func NewFaceServiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *FaceServiceClient {
	return &FaceServiceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("face_client"),
	}
}

type combinedCheckRequest struct {
	IDCardImage []byte `json:"id_card_image"`
	SelfieImage []byte `json:"selfie_image"`
}

type combinedCheckResponse struct {
	Success        bool   `json:"success"`
	LivenessPassed bool   `json:"liveness_passed"`
	FaceVerified   bool   `json:"face_verified"`
	Reason         string `json:"reason"`
}

// CombinedCheck runs passive liveness on the selfie and matches it against
// the document image. A 4xx response is the service saying no and maps to
// *face.RejectionError.
func (c *FaceServiceClient) CombinedCheck(ctx context.Context, idImage, selfieImage []byte) (*face.CombinedResult, error) {
	var out combinedCheckResponse
	resp, err := c.post(ctx, "/liveness/combined-check", combinedCheckRequest{IDCardImage: idImage, SelfieImage: selfieImage}, &out)
	if err != nil {
		return nil, err
	}

	result := &face.CombinedResult{
		LivenessPassed: out.LivenessPassed,
		FaceVerified:   out.FaceVerified,
		Reason:         out.Reason,
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("face service returned status %d", resp.StatusCode)
		}
		c.logger.Info("combined check rejected", zap.String("reason", reason),
			zap.Bool("liveness_passed", out.LivenessPassed), zap.Bool("face_verified", out.FaceVerified))
		return result, &face.RejectionError{Reason: reason}
	}
	return result, nil
}

type matchRequest struct {
	Image1 []byte `json:"image1"`
	Image2 []byte `json:"image2"`
}

type matchResponse struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
	Error    string  `json:"error"`
}

// Match compares two face images. The service reports its own evaluation
// failures (such as "no face found") inside the payload, not via HTTP
// status, so only transport problems surface as Go errors.
func (c *FaceServiceClient) Match(ctx context.Context, imageA, imageB []byte) (*face.MatchResult, error) {
	var out matchResponse
	resp, err := c.post(ctx, "/verify-faces", matchRequest{Image1: imageA, Image2: imageB}, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face match failed with status %d", resp.StatusCode)
	}

	return &face.MatchResult{
		Verified: out.Verified,
		Distance: out.Distance,
		Error:    out.Error,
	}, nil
}

type evaluateRequest struct {
	Frame     []byte             `json:"frame"`
	Challenge face.ChallengeKind `json:"challenge"`
	Blink     *face.BlinkState   `json:"blink,omitempty"`
}

type evaluateResponse struct {
	Satisfied bool             `json:"satisfied"`
	Blink     *face.BlinkState `json:"blink,omitempty"`
}

// EvaluateChallenge judges one frame against a challenge kind. Blink state
// round-trips through the service so the counter stays with the caller
// rather than in a service-global singleton.
func (c *FaceServiceClient) EvaluateChallenge(ctx context.Context, frame []byte, kind face.ChallengeKind, blink *face.BlinkState) (bool, error) {
	var out evaluateResponse
	resp, err := c.post(ctx, "/challenge/evaluate", evaluateRequest{Frame: frame, Challenge: kind, Blink: blink}, &out)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("challenge evaluation failed with status %d", resp.StatusCode)
	}

	if blink != nil && out.Blink != nil {
		*blink = *out.Blink
	}
	return out.Satisfied, nil
}

// post sends a JSON request and decodes the JSON response regardless of
// status code, returning the raw response for status inspection.
func (c *FaceServiceClient) post(ctx context.Context, path string, payload, out interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("face service unreachable", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to reach face service: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return resp, nil
}
