package announcement

import (
	"database/sql"
	"strings"
	"time"
)

// Record represents one corporate announcement. For deduplication purposes a
// record is identified by the (Symbol, Title) pair, matched exactly and
// case-sensitively after whitespace trimming. Timestamp and link differences between two
// records with the same pair do not make them distinct events.
type Record struct {
	ID          int64
	Symbol      string         // short company code, e.g. "RELIANCE"
	CompanyName sql.NullString // full name, e.g. "Reliance Industries Limited"
	Title       string         // announcement headline text
	Description sql.NullString // long text from the attachment, when present
	Link        sql.NullString // URL to the attachment file, when present
	AnnouncedAt time.Time
	CreatedAt   time.Time
}

// DisplayName returns the full company name when known, the symbol otherwise.
func (r *Record) DisplayName() string {
	if r.CompanyName.Valid && strings.TrimSpace(r.CompanyName.String) != "" {
		return r.CompanyName.String
	}
	return r.Symbol
}
