package telegram

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"

	"nse_alert_bot/internal/domain/announcement"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

type sentMessage struct {
	chatID  int64
	text    string
	options *telebot.SendOptions
}

type fakeClient struct {
	sent []sentMessage
	err  error
}

func (f *fakeClient) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, options: options})
	return nil
}

func newTestNotifier(client *fakeClient) *AnnouncementNotifier {
	// High rate so tests never wait on the limiter.
	return NewAnnouncementNotifier(client, 622849107, 1000, testLogger())
}

func ns(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func TestNotifyFormatsAlert(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	rec := &announcement.Record{
		Symbol:      "TCS",
		CompanyName: ns("Tata Consultancy Services Limited"),
		Title:       "Board Meeting",
		Description: ns("Outcome of the meeting"),
		Link:        ns("https://archives.nseindia.com/a.pdf"),
	}
	require.NoError(t, n.Notify(context.Background(), rec))
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.EqualValues(t, 622849107, msg.chatID)
	assert.Equal(t, telebot.ModeHTML, msg.options.ParseMode)
	assert.Contains(t, msg.text, "Tata Consultancy Services Limited (TCS)")
	assert.Contains(t, msg.text, "Board Meeting")
	assert.Contains(t, msg.text, "Outcome of the meeting")
	assert.Contains(t, msg.text, `<a href="https://archives.nseindia.com/a.pdf">View Document</a>`)
}

func TestNotifyEscapesUserControlledFields(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	rec := &announcement.Record{
		Symbol:      "EVILCO",
		Title:       `<b>Fake & bold</b> "quote"`,
		Description: ns("a < b & c > d"),
		Link:        ns(`https://x/a.pdf?q="1"&r=2`),
	}
	require.NoError(t, n.Notify(context.Background(), rec))
	require.Len(t, client.sent, 1)

	text := client.sent[0].text
	assert.Contains(t, text, "&lt;b&gt;Fake &amp; bold&lt;/b&gt;")
	assert.NotContains(t, text, "<b>Fake")
	assert.Contains(t, text, "a &lt; b &amp; c &gt; d")
	assert.Contains(t, text, "q=&#34;1&#34;&amp;r=2")
}

func TestNotifyWithoutCompanyNameOrLink(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	rec := &announcement.Record{Symbol: "TCS", Title: "Board Meeting"}
	require.NoError(t, n.Notify(context.Background(), rec))
	require.Len(t, client.sent, 1)

	text := client.sent[0].text
	assert.Contains(t, text, "<b>TCS</b>")
	assert.NotContains(t, text, "(TCS)")
	assert.Contains(t, text, "No document available")
}

func TestNotifyLongDescriptionIsTruncated(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	rec := &announcement.Record{
		Symbol:      "TCS",
		Title:       "Board Meeting",
		Description: ns(strings.Repeat("x", 500)),
	}
	require.NoError(t, n.Notify(context.Background(), rec))
	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].text, strings.Repeat("x", descriptionPreviewLen)+"...")
	assert.NotContains(t, client.sent[0].text, strings.Repeat("x", descriptionPreviewLen+1))
}

func TestNotifySendFailureIsReturned(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("telegram 429")}
	n := newTestNotifier(client)

	err := n.Notify(context.Background(), &announcement.Record{Symbol: "TCS", Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TCS")
}

func TestNotifySummaryGroupsByCompany(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	recs := []*announcement.Record{
		{Symbol: "TCS", CompanyName: ns("Tata Consultancy Services Limited"), Title: "First item"},
		{Symbol: "TCS", CompanyName: ns("Tata Consultancy Services Limited"), Title: "Second item"},
		{Symbol: "TCS", CompanyName: ns("Tata Consultancy Services Limited"), Title: "Third item"},
		{Symbol: "INFY", Title: "Only one here"},
	}
	require.NoError(t, n.NotifySummary(context.Background(), recs))
	require.Len(t, client.sent, 1)

	text := client.sent[0].text
	assert.Contains(t, text, "Found 4 new announcements")
	assert.Contains(t, text, "Tata Consultancy Services Limited (TCS)")
	assert.Contains(t, text, "<b>INFY</b>")
	assert.Contains(t, text, "First item")
	assert.Contains(t, text, "Second item")
	// Third title for the same company collapses into the overflow line.
	assert.NotContains(t, text, "Third item")
	assert.Contains(t, text, "and 1 more")
}

func TestNotifySummaryCapsRecordCount(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	var recs []*announcement.Record
	for i := 0; i < 14; i++ {
		recs = append(recs, &announcement.Record{
			Symbol: fmt.Sprintf("SYM%02d", i),
			Title:  fmt.Sprintf("announcement %d", i),
		})
	}
	require.NoError(t, n.NotifySummary(context.Background(), recs))
	require.Len(t, client.sent, 1)

	text := client.sent[0].text
	assert.Contains(t, text, "Found 14 new announcements")
	assert.Contains(t, text, "... and 4 more announcements")
	// Only the first summaryMaxCompanies companies are listed.
	assert.Contains(t, text, "SYM04")
	assert.NotContains(t, text, "SYM05")
}

func TestNotifySummaryEmptyBatchSendsNothing(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client)

	require.NoError(t, n.NotifySummary(context.Background(), nil))
	assert.Empty(t, client.sent)
}
