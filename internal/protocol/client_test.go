package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-journal/backend/internal/model/session"
)

func TestDecodeClientVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ClientMessage
	}{
		{"start default mode", `{"type":"start_session"}`, StartSession{Mode: session.ModeRealtime}},
		{"start guided", `{"type":"start_session","mode":"Standard","sessionType":" morning_checkin "}`, StartSession{Mode: session.ModeStandard, SessionType: "morning_checkin"}},
		{"audio", `{"type":"audio_chunk","data":"AQID"}`, AudioChunk{Data: "AQID", Audio: []byte{1, 2, 3}}},
		{"end turn", `{"type":"end_turn"}`, EndTurn{}},
		{"end session bare", `{"type":"end_session"}`, EndSession{}},
		{"end session save", `{"type":"end_session","saveOptions":{"save":true,"title":"t","tags":["a"]}}`, EndSession{SaveOptions: &SaveOptions{Save: true, Title: "t", Tags: []string{"a"}}}},
		{"token refresh", `{"type":"token_refresh","token":" abc "}`, TokenRefresh{Token: "abc"}},
		{"restore", `{"type":"restore_transcript","content":"User: hi","sequenceId":7}`, RestoreTranscript{Content: "User: hi", SequenceID: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, derr := DecodeClient([]byte(tc.raw))
			require.Nil(t, derr)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeClientRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		param string
	}{
		{"not json", `{"type":`, ""},
		{"missing type", `{"data":"AQID"}`, "type"},
		{"unknown type", `{"type":"dance"}`, "type"},
		{"bad mode", `{"type":"start_session","mode":"turbo"}`, "mode"},
		{"empty audio", `{"type":"audio_chunk","data":""}`, "data"},
		{"audio not base64", `{"type":"audio_chunk","data":"***"}`, "data"},
		{"audio wrong type", `{"type":"audio_chunk","data":42}`, ""},
		{"empty token", `{"type":"token_refresh","token":"  "}`, "token"},
		{"negative sequence", `{"type":"restore_transcript","content":"x","sequenceId":-1}`, "sequenceId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, derr := DecodeClient([]byte(tc.raw))
			assert.Nil(t, got)
			require.NotNil(t, derr)
			assert.Equal(t, CodeInvalidMessage, derr.Code)
			assert.Equal(t, tc.param, derr.Param)
		})
	}
}

func TestServerMessagesCarryType(t *testing.T) {
	entry := session.TranscriptEntry{SequenceID: 3, Speaker: session.SpeakerUser, Text: "hello", Timestamp: time.Unix(0, 0).UTC()}
	raw, err := json.Marshal(NewTranscriptDelta(entry))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"transcript_delta","delta":"hello","speaker":"user","timestamp":"1970-01-01T00:00:00Z","sequenceId":3}`, string(raw))

	raw, err = json.Marshal(NewAudioResponse("", "text survives"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio_response","data":"","transcript":"text survives"}`, string(raw))

	raw, err = json.Marshal(NewError(CodeInvalidMessage, "bad", true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","code":"INVALID_MESSAGE","message":"bad","recoverable":true}`, string(raw))
}
