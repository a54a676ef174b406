package protocol

import (
	"testing"
)

// ═══ Frame Codec Tests ══════════════════════════════════════════════════════

func TestFrameRoundtrip(t *testing.T) {
	payload := HeartbeatPayload{
		NodeID:        "node-1",
		CurrentLoad:   2,
		UptimeSeconds: 3600,
		SentAt:        1700000000.5,
	}

	frame, err := NewFrame(MsgHeartbeat, payload)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if frame.TS == 0 {
		t.Error("frame timestamp not set")
	}

	data, err := frame.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != MsgHeartbeat {
		t.Errorf("type = %s, want %s", decoded.Type, MsgHeartbeat)
	}

	var got HeartbeatPayload
	if err := ParsePayload(decoded, &got); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if got != payload {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"missing type", `{"payload":{},"ts":1}`},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.data)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestParsePayloadRejectsEmptyPayload(t *testing.T) {
	frame := &Frame{Type: MsgTaskResult}
	var p TaskResultPayload
	if err := ParsePayload(frame, &p); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestRegisterPayloadCarriesCapabilities(t *testing.T) {
	payload := RegisterPayload{
		NodeID:     "node-7",
		PublicKey:  "cHVibGljLWtleQ==",
		AccountKey: "1234 5678 9012 3456",
		Capabilities: Capabilities{
			ModelName:       "llama-3-70b",
			MaxContext:      8192,
			VRAMGB:          24,
			GPUName:         "RTX 4090",
			ModelParamsB:    70,
			Quantization:    "Q4_K_M",
			TokensPerSecond: 52,
			SupportsVision:  true,
		},
	}

	frame, err := NewFrame(MsgNodeRegister, payload)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	data, err := frame.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var got RegisterPayload
	if err := ParsePayload(decoded, &got); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if got.Capabilities != payload.Capabilities {
		t.Errorf("capabilities = %+v, want %+v", got.Capabilities, payload.Capabilities)
	}
	if !got.Capabilities.SupportsVision {
		t.Error("supports_vision flag lost in transit")
	}
}

func TestStreamChunksKeepOrderingIndex(t *testing.T) {
	for i := 0; i < 3; i++ {
		frame, err := NewFrame(MsgTaskStream, TaskStreamPayload{
			SubtaskID:      "st-1",
			TaskID:         "t-1",
			NodeID:         "node-1",
			EncryptedChunk: "b64envelope",
			ChunkIndex:     i,
		})
		if err != nil {
			t.Fatalf("NewFrame: %v", err)
		}
		data, _ := frame.Encode()
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		var got TaskStreamPayload
		if err := ParsePayload(decoded, &got); err != nil {
			t.Fatalf("ParsePayload: %v", err)
		}
		if got.ChunkIndex != i {
			t.Errorf("chunk_index = %d, want %d", got.ChunkIndex, i)
		}
	}
}
