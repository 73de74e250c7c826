package session

import (
	"encoding/json"
	"fmt"
)

// Wire envelopes for the BidiGenerateContent protocol. All frames are UTF-8
// JSON text messages with a single top-level envelope key identifying the
// frame kind; field names on the wire are snake_case.

// ─── Outbound frames ───────────────────────────────────────────────────────────

type setupFrame struct {
	Setup setupPayload `json:"BidiGenerateContentSetup"`
}

type setupPayload struct {
	Model             string             `json:"model"`
	GenerationConfig  generationPayload  `json:"generation_config"`
	SystemInstruction *systemInstruction `json:"system_instruction,omitempty"`
}

type generationPayload struct {
	ResponseModalities []string `json:"response_modalities"`
	Temperature        float64  `json:"temperature"`
	TopP               float64  `json:"top_p"`
	TopK               int      `json:"top_k"`
	MaxOutputTokens    int      `json:"max_output_tokens"`
}

type systemInstruction struct {
	Parts []textPart `json:"parts"`
}

type realtimeInputFrame struct {
	RealtimeInput realtimeInput `json:"BidiGenerateContentRealtimeInput"`
}

type realtimeInput struct {
	// MediaChunks marshal as base64 strings, one per chunk.
	MediaChunks   [][]byte       `json:"media_chunks"`
	ClientContent *mediaMetadata `json:"client_content,omitempty"`
}

type mediaMetadata struct {
	Turns []mediaTurn `json:"turns"`
}

type mediaTurn struct {
	Parts []mediaPart `json:"parts"`
}

type mediaPart struct {
	Role     string `json:"role"`
	MIMEType string `json:"mime_type"`
}

type clientContentFrame struct {
	ClientContent clientContent `json:"BidiGenerateContentClientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turn_complete"`
}

type contentTurn struct {
	Role  string     `json:"role"`
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

// newSetupFrame builds the handshake frame sent immediately after dialing.
// The generation config must already be merged.
func newSetupFrame(model string, gen GenerationConfig, instruction string) ([]byte, error) {
	f := setupFrame{
		Setup: setupPayload{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationPayload{
				ResponseModalities: []string{"TEXT"},
				Temperature:        gen.Temperature,
				TopP:               gen.TopP,
				TopK:               gen.TopK,
				MaxOutputTokens:    gen.MaxOutputTokens,
			},
		},
	}
	if instruction != "" {
		f.Setup.SystemInstruction = &systemInstruction{
			Parts: []textPart{{Text: instruction}},
		}
	}
	return json.Marshal(f)
}

// newAudioFrame wraps one raw PCM chunk as a realtime-input frame.
func newAudioFrame(chunk []byte) ([]byte, error) {
	f := realtimeInputFrame{
		RealtimeInput: realtimeInput{
			MediaChunks: [][]byte{chunk},
			ClientContent: &mediaMetadata{
				Turns: []mediaTurn{{
					Parts: []mediaPart{{Role: "user", MIMEType: "audio/raw"}},
				}},
			},
		},
	}
	return json.Marshal(f)
}

// newTextFrame wraps a text turn as a client-content frame.
func newTextFrame(role, text string) ([]byte, error) {
	if role == "" {
		role = "user"
	}
	f := clientContentFrame{
		ClientContent: clientContent{
			Turns:        []contentTurn{{Role: role, Parts: []textPart{{Text: text}}}},
			TurnComplete: true,
		},
	}
	return json.Marshal(f)
}

// ─── Inbound frames ────────────────────────────────────────────────────────────

type serverFrame struct {
	ServerContent *serverContent `json:"BidiGenerateContentServerContent,omitempty"`
	Error         *serverError   `json:"BidiGenerateContentResponse,omitempty"`
}

type serverContent struct {
	ModelTurn   *modelTurn `json:"model_turn,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []textPart `json:"parts"`
}

type serverError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// parseServerFrame decodes one inbound frame.
func parseServerFrame(data []byte) (*serverFrame, error) {
	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("session: parse frame: %w", err)
	}
	return &f, nil
}

// text concatenates the turn's text parts in order.
func (t *modelTurn) text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}
