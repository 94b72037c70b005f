package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nse_alert_bot/internal/domain/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFullItem(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, nil)
	rec, ok := n.Normalize(source.RawItem{
		Symbol:         " TCS ",
		CompanyName:    "Tata Consultancy Services Limited",
		Desc:           " Board Meeting ",
		AttachmentText: "Outcome of board meeting",
		AttachmentFile: "https://archives.nseindia.com/some.pdf",
		AnnouncedAt:    "2024-01-05 10:00:00",
	})
	require.True(t, ok)
	assert.Equal(t, "TCS", rec.Symbol)
	assert.Equal(t, "Board Meeting", rec.Title)
	assert.Equal(t, "Tata Consultancy Services Limited", rec.CompanyName.String)
	assert.Equal(t, "Outcome of board meeting", rec.Description.String)
	assert.Equal(t, "https://archives.nseindia.com/some.pdf", rec.Link.String)
	want := time.Date(2024, 1, 5, 10, 0, 0, 0, time.Local)
	assert.True(t, rec.AnnouncedAt.Equal(want), "got %s", rec.AnnouncedAt)
}

func TestNormalizeSkipsEmptySymbolAndTitle(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, nil)

	_, ok := n.Normalize(source.RawItem{Symbol: "   ", Desc: "something"})
	assert.False(t, ok)

	_, ok = n.Normalize(source.RawItem{Symbol: "TCS", Desc: "  \t "})
	assert.False(t, ok)

	_, ok = n.Normalize(source.RawItem{})
	assert.False(t, ok)
}

func TestNormalizeTimestampFormats(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, nil)

	cases := []struct {
		name string
		item source.RawItem
		want time.Time
	}{
		{
			name: "iso-like an_dt",
			item: source.RawItem{Symbol: "TCS", Desc: "x", AnnouncedAt: "2025-09-27 17:07:02"},
			want: time.Date(2025, 9, 27, 17, 7, 2, 0, time.Local),
		},
		{
			name: "twelve hour dt",
			item: source.RawItem{Symbol: "TCS", Desc: "x", Date: "27-Sep-2025 05:07:02 PM"},
			want: time.Date(2025, 9, 27, 17, 7, 2, 0, time.Local),
		},
		{
			name: "an_dt wins over dt",
			item: source.RawItem{Symbol: "TCS", Desc: "x", AnnouncedAt: "2025-09-27 09:00:00", Date: "27-Sep-2025 05:07:02 PM"},
			want: time.Date(2025, 9, 27, 9, 0, 0, 0, time.Local),
		},
		{
			name: "sort_date as last resort",
			item: source.RawItem{Symbol: "TCS", Desc: "x", SortDate: "2025-09-27 08:30:00"},
			want: time.Date(2025, 9, 27, 8, 30, 0, 0, time.Local),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := n.Normalize(tc.item)
			require.True(t, ok)
			assert.True(t, rec.AnnouncedAt.Equal(tc.want), "got %s want %s", rec.AnnouncedAt, tc.want)
		})
	}
}

func TestNormalizeUnparseableDateFallsBackToNow(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, nil)
	before := time.Now()
	rec, ok := n.Normalize(source.RawItem{Symbol: "TCS", Desc: "x", AnnouncedAt: "not a date", Date: "also garbage"})
	require.True(t, ok)
	after := time.Now()

	assert.False(t, rec.AnnouncedAt.Before(before.Add(-time.Second)))
	assert.False(t, rec.AnnouncedAt.After(after.Add(time.Second)))
}

func TestNormalizeHeadlineVariant(t *testing.T) {
	n := NewNormalizer(TitleFieldHeadline, nil)
	rec, ok := n.Normalize(source.RawItem{
		Symbol:   "RELIANCE",
		Desc:     "ignored in this variant",
		Headline: "AGM Notice",
		PDFLink:  "https://example.org/agm.pdf",
	})
	require.True(t, ok)
	assert.Equal(t, "AGM Notice", rec.Title)
	assert.Equal(t, "https://example.org/agm.pdf", rec.Link.String)
}

func TestNormalizeLinkFallsBackToPDFLink(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, nil)
	rec, ok := n.Normalize(source.RawItem{Symbol: "TCS", Desc: "x", PDFLink: "https://example.org/a.pdf"})
	require.True(t, ok)
	assert.Equal(t, "https://example.org/a.pdf", rec.Link.String)

	rec, ok = n.Normalize(source.RawItem{Symbol: "TCS", Desc: "y"})
	require.True(t, ok)
	assert.False(t, rec.Link.Valid)
}

func TestNormalizeAllowlistFilter(t *testing.T) {
	n := NewNormalizer(TitleFieldDesc, []string{"TCS", "INFY"})

	_, ok := n.Normalize(source.RawItem{Symbol: "OBSCURECO", Desc: "pump alert"})
	assert.False(t, ok)

	rec, ok := n.Normalize(source.RawItem{Symbol: "TCS", Desc: "Board Meeting"})
	require.True(t, ok)
	assert.Equal(t, "TCS", rec.Symbol)
}

func TestLoadSymbolAllowlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nifty500.json")
	raw, err := json.Marshal([]string{"TCS", "INFY", "RELIANCE"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	symbols, err := LoadSymbolAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS", "INFY", "RELIANCE"}, symbols)

	symbols, err = LoadSymbolAllowlist("")
	require.NoError(t, err)
	assert.Nil(t, symbols)

	_, err = LoadSymbolAllowlist(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
