package drain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func octetFrame(payload string) string {
	return fmt.Sprintf("%d %s", len(payload), payload)
}

func TestDetectFraming(t *testing.T) {
	tests := []struct {
		contentType string
		want        Framing
	}{
		{"application/logplex-1", FramingOctetCounted},
		{"Application/Logplex-1", FramingOctetCounted},
		{"application/logplex-1; charset=utf-8", FramingOctetCounted},
		{"text/plain", FramingDelimited},
		{"", FramingDelimited},
	}

	for _, tc := range tests {
		if got := DetectFraming(tc.contentType); got != tc.want {
			t.Errorf("DetectFraming(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}

func TestDecode_OctetCounted(t *testing.T) {
	first := `<158>1 2022-12-05T08:59:21+00:00 host heroku router - at=info method=GET path=/ status=200`
	second := `<190>1 2022-12-05T08:59:22+00:00 host app web.1 - hello world`
	body := octetFrame(first) + octetFrame(second)

	frames, err := Decode([]byte(body), FramingOctetCounted)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Raw != first {
		t.Errorf("first frame mismatch: %q", frames[0].Raw)
	}
	if frames[1].Raw != second {
		t.Errorf("second frame mismatch: %q", frames[1].Raw)
	}
	if frames[0].Length != len(first) {
		t.Errorf("expected declared length %d, got %d", len(first), frames[0].Length)
	}
}

func TestDecode_OctetCountedNewlineSeparated(t *testing.T) {
	// Some senders put a newline between octet-counted frames.
	first := `<158>1 2022-12-05T08:59:21+00:00 host heroku router - at=info`
	second := `<158>1 2022-12-05T08:59:22+00:00 host heroku router - at=error`
	body := octetFrame(first) + "\n" + octetFrame(second) + "\n"

	frames, err := Decode([]byte(body), FramingOctetCounted)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestDecode_LengthExceedsBody(t *testing.T) {
	good := `<158>1 2022-12-05T08:59:21+00:00 host heroku router - at=info`
	body := octetFrame(good) + "999 <158>1 truncated"

	frames, err := Decode([]byte(body), FramingOctetCounted)
	if err == nil {
		t.Fatal("expected a framing error")
	}
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FramingError, got %T", err)
	}
	// The frame before the bad one must survive.
	if len(frames) != 1 {
		t.Fatalf("expected 1 decoded frame before the error, got %d", len(frames))
	}
	if frames[0].Raw != good {
		t.Errorf("surviving frame mismatch: %q", frames[0].Raw)
	}
}

func TestDecode_MissingLengthPrefix(t *testing.T) {
	frames, err := Decode([]byte("not a framed payload"), FramingOctetCounted)
	if err == nil {
		t.Fatal("expected a framing error")
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %d", len(frames))
	}
	if !strings.Contains(err.Error(), "frame length") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestDecode_Delimited(t *testing.T) {
	body := "line one\r\n\nline two\n   \nline three"
	frames, err := Decode([]byte(body), FramingDelimited)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	want := []string{"line one", "line two", "line three"}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(frames))
	}
	for i, w := range want {
		if frames[i].Raw != w {
			t.Errorf("frame %d = %q, want %q", i, frames[i].Raw, w)
		}
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	for _, framing := range []Framing{FramingOctetCounted, FramingDelimited} {
		frames, err := Decode(nil, framing)
		if err != nil {
			t.Errorf("empty body with framing %v returned error: %v", framing, err)
		}
		if len(frames) != 0 {
			t.Errorf("empty body with framing %v produced %d frames", framing, len(frames))
		}
	}
}
