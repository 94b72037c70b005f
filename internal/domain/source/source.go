package source

import (
	"context"
	"fmt"
)

// RawItem is one element of the announcements feed, exactly as the upstream
// API serves it. Field names track the two historical shapes of the feed:
// newer payloads carry the headline in "desc" with an "attchmntFile" link,
// older ones used "headline" and "pdfLink".
type RawItem struct {
	Symbol         string `json:"symbol"`
	CompanyName    string `json:"sm_name"`
	Desc           string `json:"desc"`
	Headline       string `json:"headline"`
	AttachmentFile string `json:"attchmntFile"`
	PDFLink        string `json:"pdfLink"`
	AttachmentText string `json:"attchmntText"`
	AnnouncedAt    string `json:"an_dt"`
	Date           string `json:"dt"`
	SortDate       string `json:"sort_date"`
}

// Client issues a single fetch against the announcements feed. It must apply
// its own request timeout and must not retry; retry policy belongs to the
// scheduler (the next tick is the retry).
type Client interface {
	Fetch(ctx context.Context) ([]RawItem, error)
}

// Fetch error taxonomy. All of them terminate the current ingest cycle with
// zero new records; none is fatal to the process.
var (
	ErrTimeout          = fmt.Errorf("source request timed out")
	ErrMalformedPayload = fmt.Errorf("source returned an unparseable payload")
)

// BadStatusError is returned when the feed answers with a non-success HTTP
// status (the upstream is known to serve 401/403 to clients it dislikes).
type BadStatusError struct {
	Code int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("source returned status %d", e.Code)
}
