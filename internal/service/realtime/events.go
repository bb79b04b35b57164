package realtime

import "encoding/json"

// Upstream event types handled by the bridge.
const (
	eventSessionCreated        = "session.created"
	eventInputTranscription    = "conversation.item.input_audio_transcription.completed"
	eventAudioDelta            = "response.audio.delta"
	eventAudioTranscriptDone   = "response.audio_transcript.done"
	eventFunctionArgumentsDone = "response.function_call_arguments.done"
	eventError                 = "error"
)

type serverEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Arguments  string          `json:"arguments,omitempty"`
	Error      *upstreamError  `json:"error,omitempty"`
	Session    json.RawMessage `json:"session,omitempty"`
}

type upstreamError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionModel `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetection       `json:"turn_detection"`
	Tools                   []functionTool      `json:"tools,omitempty"`
	ToolChoice              string              `json:"tool_choice,omitempty"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type functionTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type simpleEvent struct {
	Type string `json:"type"`
}

type responseCreate struct {
	Type     string           `json:"type"`
	Response *responseOptions `json:"response,omitempty"`
}

type responseOptions struct {
	Instructions string `json:"instructions,omitempty"`
}

type itemCreate struct {
	Type string       `json:"type"`
	Item functionItem `json:"item"`
}

type functionItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}
