/*
Package chat implements the client side of the real-time chat protocol.

This file defines the room message history client. History seeds a room's
MessageList with the server's ordered message list before live updates begin;
there is no polling fallback afterwards.
*/
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"mmchat/internal/pkg/auth"
	"mmchat/internal/pkg/errs"
	"mmchat/internal/pkg/logx"
)

// historyRequestTimeout bounds one history fetch.
const historyRequestTimeout = 15 * time.Second

// historyResponse is the REST envelope wrapping the message list.
type historyResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Data    []ChatMessage `json:"data"`
}

// HistoryClient fetches a room's initial message list from the REST backend.
type HistoryClient struct {
	// baseURL is the API origin, without a trailing slash.
	baseURL string

	// tokens supplies the bearer token, read per request.
	tokens auth.TokenProvider

	// httpClient performs the requests.
	httpClient *http.Client

	// structured logger with client context.
	logger zerolog.Logger
}

// NewHistoryClient constructs a HistoryClient for the given API origin.
func NewHistoryClient(baseURL string, tokens auth.TokenProvider) *HistoryClient {
	historyLogger := logx.Logger().With().
		Str("component", "HistoryClient").
		Logger()

	return &HistoryClient{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: historyRequestTimeout},
		logger:     historyLogger,
	}
}

// RoomMessages returns the room's message history, ordered ascending by
// creation time.
func (h *HistoryClient) RoomMessages(ctx context.Context, roomID string) ([]ChatMessage, error) {
	if roomID == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	endpoint := fmt.Sprintf("%s/api/chat/rooms/%s/messages", h.baseURL, url.PathEscape(roomID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	token, err := h.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("History request failed.")
		return nil, errs.NewError(errs.ErrHistoryFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Warn().
			Int("status", resp.StatusCode).
			Str("room_id", roomID).
			Msg("History request returned non-2xx status.")
		return nil, errs.NewError(errs.ErrHistoryFetchFailed)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("Failed to decode history response.")
		return nil, errs.NewError(errs.ErrHistoryDecodeFailed)
	}

	h.logger.Debug().
		Str("room_id", roomID).
		Str("response_code", body.Code).
		Int("message_count", len(body.Data)).
		Msg("History fetched.")

	return body.Data, nil
}
