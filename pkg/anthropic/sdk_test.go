package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	t.Parallel()

	resp := fromSDKMessage(&sdk.Message{
		ID:         "msg_1",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: `{"journey_phase":"AWARE"}`}},
		Usage:      sdk.Usage{InputTokens: 200, OutputTokens: 30, CacheReadInputTokens: 120},
	})
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"journey_phase":"AWARE"}`, resp.Text())
	assert.Equal(t, int64(120), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKBatch(t *testing.T) {
	t.Parallel()

	resp := fromSDKBatch(&sdk.MessageBatch{
		ID:               "msgbatch_1",
		ProcessingStatus: "ended",
		RequestCounts:    sdk.MessageBatchRequestCounts{Succeeded: 8, Errored: 1, Expired: 1},
	})
	assert.True(t, resp.Ended())
	assert.Equal(t, int64(10), resp.RequestCounts.Total())
}

func TestFromSDKBatchResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		wantMsg bool
	}{
		{ResultSucceeded, true},
		{ResultErrored, false},
		{ResultCanceled, false},
		{ResultExpired, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			t.Parallel()
			item := fromSDKBatchResult(sdk.MessageBatchIndividualResponse{
				CustomID: "kw-7",
				Result: sdk.MessageBatchResultUnion{
					Type:    tt.typ,
					Message: sdk.Message{ID: "msg_7", Content: []sdk.ContentBlockUnion{{Type: "text", Text: "x"}}},
				},
			})
			assert.Equal(t, "kw-7", item.CustomID)
			assert.Equal(t, tt.typ, item.Type)
			assert.Equal(t, tt.wantMsg, item.Message != nil)
		})
	}
}

func TestToSDKParams(t *testing.T) {
	t.Parallel()

	temp := 0.3
	p := toSDKParams(MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   150,
		System:      []SystemBlock{{Text: "plain"}, {Text: "cached", CacheControl: &CacheControl{}}},
		Messages:    []Message{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}},
		Temperature: &temp,
	})
	assert.Equal(t, int64(150), p.MaxTokens)
	require.Len(t, p.System, 2)
	assert.Equal(t, "cached", p.System[1].Text)
	assert.Len(t, p.Messages, 2)
	assert.True(t, p.Temperature.Valid())

	bare := toSDKParams(MessageRequest{Model: "m", MaxTokens: 1})
	assert.Empty(t, bare.System)
	assert.False(t, bare.Temperature.Valid())
}
