package scan

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/luma-gate/internal/utils"
)

const (
	SourceScanner = "scanner"
	SourceAPI     = "api"
)

// Event is one decoded QR read that matched the check-in URL shape.
// ProxyKey stands in for the guest's identity and never appears in JSON.
type Event struct {
	ID         string    `json:"id"`
	RawPayload string    `json:"-"`
	EventAPIID string    `json:"event_api_id"`
	ProxyKey   string    `json:"-"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// Parse validates a decoded payload against the check-in URL shape:
// prefix + event id + query string carrying pk=<proxy key>.
func Parse(raw, prefix, source string) (Event, error) {
	payload := utils.NormalizeString(raw)
	if !strings.HasPrefix(payload, prefix) {
		return Event{}, fmt.Errorf("payload does not match the check-in URL prefix")
	}

	rest := strings.TrimPrefix(payload, prefix)
	eventID, query, found := strings.Cut(rest, "?")
	if !found || query == "" {
		return Event{}, fmt.Errorf("payload has no query string")
	}
	if eventID == "" || strings.Contains(eventID, "/") {
		return Event{}, fmt.Errorf("payload has no event id")
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return Event{}, fmt.Errorf("payload query is malformed: %w", err)
	}
	proxyKey := values.Get("pk")
	if proxyKey == "" {
		return Event{}, fmt.Errorf("payload has no pk parameter")
	}

	return Event{
		ID:         uuid.New().String(),
		RawPayload: payload,
		EventAPIID: eventID,
		ProxyKey:   proxyKey,
		Source:     source,
		ObservedAt: time.Now().UTC(),
	}, nil
}
