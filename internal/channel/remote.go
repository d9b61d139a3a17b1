package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"helpdesk/internal/classifier"
	"helpdesk/internal/models"

	"github.com/cenkalti/backoff/v5"
)

const remoteMaxTries = 3

// RemoteClassifier calls the chat endpoint of a running server, for bots deployed
// apart from the API
type RemoteClassifier struct {
	baseURL string
	client  *http.Client
}

// NewRemoteClassifier creates a client for baseURL such as http://localhost:8080
func NewRemoteClassifier(baseURL string, timeout time.Duration) *RemoteClassifier {
	return &RemoteClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Classify posts the message to /api/chat, retrying transport errors and 5xx replies
func (r *RemoteClassifier) Classify(ctx context.Context, req classifier.Request) (*classifier.Result, error) {
	body, err := json.Marshal(models.ChatRequest{
		Message:    req.Message,
		History:    req.History,
		UserID:     req.UserID,
		Language:   req.Language,
		Source:     req.Source,
		ClientType: req.ClientType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	operation := func() (*models.ChatResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var chat models.ChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode chat response: %w", err))
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, fmt.Errorf("chat service error %d: %s", resp.StatusCode, chat.Error)
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(fmt.Errorf("chat service rejected request %d: %s", resp.StatusCode, chat.Error))
		}
		return &chat, nil
	}

	chat, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(remoteMaxTries))
	if err != nil {
		return nil, err
	}

	return &classifier.Result{
		Answer:             chat.Answer,
		Sources:            chat.Sources,
		Confidence:         chat.Confidence,
		TicketCreated:      chat.TicketCreated,
		TicketID:           chat.TicketID,
		RequiresClientType: chat.RequiresClientType,
		ClientType:         chat.ClientType,
	}, nil
}
