// internal/app/normalizer.go
package app

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"nse_alert_bot/internal/domain/announcement"
	"nse_alert_bot/internal/domain/source"
)

// TitleField selects which raw field carries the announcement headline. The
// feed has shipped it under two names over time; which one is live is a
// deployment concern, so it is configuration rather than code.
type TitleField string

const (
	TitleFieldDesc     TitleField = "desc"
	TitleFieldHeadline TitleField = "headline"
)

// dateLayouts are tried in order against each candidate date field. The
// first two are the formats the feed is known to serve; the third has been
// seen on older payloads.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"02-Jan-2006 03:04:05 PM",
	"02-Jan-2006 15:04:05",
}

// Normalizer maps one raw feed item into a canonical announcement record.
// It is stateless apart from its configuration and safe for concurrent use.
type Normalizer struct {
	titleField TitleField
	allowlist  map[string]struct{} // nil means no filtering
	now        func() time.Time
}

func NewNormalizer(titleField TitleField, allowlist []string) *Normalizer {
	n := &Normalizer{titleField: titleField, now: time.Now}
	if len(allowlist) > 0 {
		n.allowlist = make(map[string]struct{}, len(allowlist))
		for _, s := range allowlist {
			n.allowlist[strings.TrimSpace(s)] = struct{}{}
		}
	}
	return n
}

// Normalize converts a raw item into a Record. The second return value is
// false when the item should be skipped: empty symbol or title after
// trimming, or a symbol outside the configured allow-list. A skip is an
// expected, frequent condition, not an error, and never affects the
// processing of other items in the batch.
func (n *Normalizer) Normalize(item source.RawItem) (*announcement.Record, bool) {
	symbol := strings.TrimSpace(item.Symbol)
	title := strings.TrimSpace(n.rawTitle(item))
	if symbol == "" || title == "" {
		return nil, false
	}
	if n.allowlist != nil {
		if _, ok := n.allowlist[symbol]; !ok {
			return nil, false
		}
	}

	link := strings.TrimSpace(item.AttachmentFile)
	if link == "" {
		link = strings.TrimSpace(item.PDFLink)
	}

	return &announcement.Record{
		Symbol:      symbol,
		CompanyName: nullString(strings.TrimSpace(item.CompanyName)),
		Title:       title,
		Description: nullString(strings.TrimSpace(item.AttachmentText)),
		Link:        nullString(link),
		AnnouncedAt: n.parseTimestamp(item),
	}, true
}

func (n *Normalizer) rawTitle(item source.RawItem) string {
	if n.titleField == TitleFieldHeadline {
		return item.Headline
	}
	return item.Desc
}

// parseTimestamp tries the date fields in feed-priority order and each known
// layout against them. Total failure falls back to the current time rather
// than rejecting the record.
func (n *Normalizer) parseTimestamp(item source.RawItem) time.Time {
	for _, raw := range []string{item.AnnouncedAt, item.Date, item.SortDate} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
				return t
			}
		}
	}
	return n.now()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// LoadSymbolAllowlist reads a JSON array of symbols (the Nifty-500 list in
// the original deployment) from disk. An empty path means no allow-list.
func LoadSymbolAllowlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol allowlist %s: %w", path, err)
	}
	var symbols []string
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("failed to parse symbol allowlist %s: %w", path, err)
	}
	return symbols, nil
}
