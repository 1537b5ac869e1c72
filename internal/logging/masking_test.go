package logging

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMaskHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"secret header redacted", "X-App-Secret", "super-secret", "[REDACTED]"},
		{"password header redacted", "X-Password", "hunter2", "[REDACTED]"},
		{"access token keeps last four", "X-SBISAccessToken", "abcdef123456", "****3456"},
		{"api key keeps last four", "X-API-Key", "relay-key-9876", "****9876"},
		{"authorization keeps last four", "Authorization", "Bearer tok1", "****tok1"},
		{"short token fully masked", "X-API-Key", "ab", "****"},
		{"plain header untouched", "Content-Type", "application/json", "application/json"},
		{"request id untouched", "X-Request-ID", "req-123", "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskHeader(tt.header, tt.value); got != tt.want {
				t.Errorf("MaskHeader(%q, %q) = %q, want %q", tt.header, tt.value, got, tt.want)
			}
		})
	}
}

func TestMaskSecrets(t *testing.T) {
	t.Run("masks credential fields at any depth", func(t *testing.T) {
		body := []byte(`{
			"app_client_id": "client-1",
			"app_secret": "s3cr3t",
			"nested": {"token": "tok-abc", "sid": "sid-1", "note": "ok"},
			"list": [{"api_key": "key-1"}]
		}`)

		masked := MaskSecrets(body)
		out := string(masked)

		for _, leaked := range []string{"s3cr3t", "tok-abc", "sid-1", "key-1"} {
			if strings.Contains(out, leaked) {
				t.Errorf("masked body still contains %q: %s", leaked, out)
			}
		}
		if !strings.Contains(out, "client-1") {
			t.Errorf("non-secret field lost: %s", out)
		}
		if !strings.Contains(out, `"note":"ok"`) {
			t.Errorf("nested non-secret field lost: %s", out)
		}
	})

	t.Run("non-JSON passes through", func(t *testing.T) {
		body := []byte("plain text with token inside")
		if got := MaskSecrets(body); string(got) != string(body) {
			t.Errorf("MaskSecrets changed non-JSON body: %q", got)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if got := MaskSecrets(nil); len(got) != 0 {
			t.Errorf("MaskSecrets(nil) = %q, want empty", got)
		}
	})
}

func TestMaskJSONBody(t *testing.T) {
	body := []byte(`{"name":"deal","value":"secret-stuff","meta":{"name":"inner","other":"x"}}`)

	t.Run("nil allowlist passes through", func(t *testing.T) {
		if got := MaskJSONBody(body, nil); string(got) != string(body) {
			t.Errorf("nil allowlist changed body: %q", got)
		}
	})

	t.Run("allowlisted fields survive", func(t *testing.T) {
		masked := MaskJSONBody(body, []string{"name"})

		var parsed map[string]any
		if err := json.Unmarshal(masked, &parsed); err != nil {
			t.Fatalf("unmarshal masked body: %v", err)
		}
		if parsed["name"] != "deal" {
			t.Errorf("name = %v, want deal", parsed["name"])
		}
		if parsed["value"] != "[REDACTED]" {
			t.Errorf("value = %v, want [REDACTED]", parsed["value"])
		}
		meta := parsed["meta"].(map[string]any)
		if meta["name"] != "inner" || meta["other"] != "[REDACTED]" {
			t.Errorf("meta = %v, want nested allowlist applied", meta)
		}
	})
}

func TestFormatBinaryData(t *testing.T) {
	if got := FormatBinaryData([]byte{0xff, 0x00, 0x01}); got != "[BINARY: 3 bytes]" {
		t.Errorf("FormatBinaryData = %q", got)
	}
}
