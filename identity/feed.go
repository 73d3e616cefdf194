package identity

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// feedPayload is the data document of one SSE feed entry.
type feedPayload struct {
	UserID           string `json:"user_id"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
	PhoneConfirmedAt string `json:"phone_confirmed_at"`
}

// Subscribe implements domain.Provider. The change feed is consumed as
// a server-sent event stream; the returned cancel tears the connection
// down. Delivery is best effort (the foreground poll exists precisely
// because push can be missed), so a dropped stream closes the channel
// instead of retrying forever.
func (c *Client) Subscribe(ctx context.Context, userID string) (<-chan domain.Event, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet,
		fmt.Sprintf("%s/events?user_id=%s", c.baseURL, userID), nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("apikey", c.apiKey)

	// The stream outlives the client timeout; use the bare transport.
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("%w: feed returned %d", errors.ErrResolutionFailed, resp.StatusCode)
	}

	events := make(chan domain.Event, 8)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var kind string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				evt := parseFeedEvent(kind, data)
				select {
				case events <- evt:
				case <-streamCtx.Done():
					return
				}
			case line == "":
				kind = ""
			}
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			c.logger.Warn().Err(err).Msg("auth change feed closed unexpectedly")
		}
	}()

	return events, cancel, nil
}

func parseFeedEvent(kind, data string) domain.Event {
	var payload feedPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return domain.UnknownEvent{Kind: kind}
	}
	verified := payload.EmailConfirmedAt != "" || payload.PhoneConfirmedAt != ""

	switch kind {
	case "USER_UPDATED":
		return domain.UserUpdated{UserID: payload.UserID, Verified: verified}
	case "SIGNED_IN":
		return domain.SignedIn{Session: domain.Session{UserID: payload.UserID, Verified: verified}}
	case "SIGNED_OUT":
		return domain.SignedOut{}
	case "TOKEN_REFRESHED":
		return domain.TokenRefreshed{Session: domain.Session{UserID: payload.UserID, Verified: verified}}
	default:
		return domain.UnknownEvent{Kind: kind}
	}
}
