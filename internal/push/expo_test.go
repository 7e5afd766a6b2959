package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://push.test/--/api/v2"

func newMockedClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testBaseURL, append([]Option{WithHTTPClient(hc)}, opts...)...)
}

func TestIsValidToken(t *testing.T) {
	c := NewClient("")
	assert.True(t, c.IsValidToken("ExponentPushToken[abc123]"))
	assert.True(t, c.IsValidToken("ExpoPushToken[abc123]"))
	assert.True(t, c.IsValidToken("1a2b3c4d-1a2b-1a2b-1a2b-1a2b3c4d5e6f"))
	assert.False(t, c.IsValidToken("not-a-valid-token"))
	assert.False(t, c.IsValidToken(""))
	assert.False(t, c.IsValidToken("ExponentPushToken[]"))
}

func TestChunk(t *testing.T) {
	c := NewClient("")
	messages := make([]Message, 250)
	chunks := c.Chunk(messages)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[2], 50)

	ids := make([]string, 301)
	idChunks := c.ChunkReceiptIDs(ids)
	require.Len(t, idChunks, 2)
	assert.Len(t, idChunks[1], 1)

	assert.Empty(t, c.Chunk(nil))
}

func TestSendReturnsTickets(t *testing.T) {
	c := newMockedClient(t, WithAccessToken("secret"))

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/push/send",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			var msgs []Message
			require.NoError(t, json.NewDecoder(req.Body).Decode(&msgs))
			require.Len(t, msgs, 2)
			assert.Equal(t, "ExponentPushToken[a]", msgs[0].To)
			return httpmock.NewStringResponse(200, `{"data":[
				{"status":"ok","id":"ticket-1"},
				{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}
			]}`), nil
		})

	tickets, err := c.Send(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Title: "hi"},
		{To: "ExponentPushToken[b]", Title: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, StatusOK, tickets[0].Status)
	assert.Equal(t, "ticket-1", tickets[0].ID)
	assert.Equal(t, StatusError, tickets[1].Status)
	assert.Equal(t, ErrDeviceNotRegistered, tickets[1].ErrorCode())
}

func TestSendRejectsOversizedRequest(t *testing.T) {
	c := newMockedClient(t)
	_, err := c.Send(context.Background(), make([]Message, MaxMessagesPerRequest+1))
	assert.Error(t, err)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/push/send",
		httpmock.NewStringResponder(400, `{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`))

	_, err := c.Send(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	assert.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSendRetriesServerErrors(t *testing.T) {
	c := newMockedClient(t, WithMaxRetries(2))
	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/push/send",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(503, "unavailable"), nil
			}
			return httpmock.NewStringResponse(200, `{"data":[{"status":"ok","id":"t"}]}`), nil
		})

	tickets, err := c.Send(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	require.NoError(t, err)
	assert.Equal(t, "t", tickets[0].ID)
	assert.Equal(t, 2, calls)
}

func TestSendTopLevelErrors(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/push/send",
		httpmock.NewStringResponder(200, `{"errors":[{"code":"PUSH_TOO_MANY_EXPERIENCE_IDS","message":"mixed"}]}`))

	_, err := c.Send(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	assert.ErrorContains(t, err, "PUSH_TOO_MANY_EXPERIENCE_IDS")
}

func TestGetReceipts(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/push/getReceipts",
		func(req *http.Request) (*http.Response, error) {
			var body map[string][]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, []string{"t1", "t2", "t3"}, body["ids"])
			return httpmock.NewStringResponse(200, `{"data":{
				"t1":{"status":"ok"},
				"t2":{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}
			}}`), nil
		})

	receipts, err := c.GetReceipts(context.Background(), []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, StatusOK, receipts["t1"].Status)
	assert.Equal(t, ErrDeviceNotRegistered, receipts["t2"].ErrorCode())
	_, ready := receipts["t3"]
	assert.False(t, ready)
}

func TestGetReceiptsTooMany(t *testing.T) {
	c := newMockedClient(t)
	ids := make([]string, MaxReceiptIDsPerRequest+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	_, err := c.GetReceipts(context.Background(), ids)
	assert.Error(t, err)
}
