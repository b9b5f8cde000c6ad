package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// Client posts lead records to the marketplace's intake endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  *logging.Logger
}

// NewClient creates a marketplace client with an explicit timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

// wireResponse is the marketplace's submission reply.
type wireResponse struct {
	Status  string `json:"status"`
	LeadID  string `json:"lead_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit posts one lead record. Acceptance returns the marketplace-assigned
// lead id; every failure mode surfaces as *SubmitError.
func (c *Client) Submit(ctx context.Context, record LeadRecord) (string, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return "", &SubmitError{Code: CodeMalformed, Message: "could not encode lead record", cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leads", bytes.NewReader(body))
	if err != nil {
		return "", &SubmitError{Code: CodeTransport, Message: "could not build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &SubmitError{Code: CodeTransport, Message: "marketplace unreachable", cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &SubmitError{Code: CodeTransport, Message: "could not read marketplace response", cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("marketplace returned non-success status",
			"status", resp.StatusCode, "campaign_id", record.CampaignID)
		return "", &SubmitError{
			Code:    CodeBadStatus,
			Message: fmt.Sprintf("marketplace returned status %d", resp.StatusCode),
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return "", &SubmitError{Code: CodeMalformed, Message: "unparseable marketplace response", cause: err}
	}

	switch strings.ToLower(wire.Status) {
	case "accepted", "success", "ok":
		if wire.LeadID == "" {
			return "", &SubmitError{Code: CodeMalformed, Message: "marketplace accepted without a lead id"}
		}
		return wire.LeadID, nil
	default:
		code := wire.Code
		if code == "" {
			code = CodeRejected
		}
		message := wire.Message
		if message == "" {
			message = "the marketplace rejected this lead"
		}
		return "", &SubmitError{Code: code, Message: message}
	}
}
