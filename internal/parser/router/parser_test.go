package router

import (
	"errors"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

func testParser() *Parser {
	return NewParser(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace))
}

const routerInfoFrame = `111 <158>1 2022-12-05T08:59:21.850424+00:00 host heroku router - at=info method=GET path="/api/disposition/service/?hub=33" host=backend.example.com request_id=60fbbe6e-0ea5-4013-ab6a-9d6851fe1c95 fwd="80.187.107.115,167.82.231.29" dyno=web.10 connect=2ms service=864ms status=200 bytes=15055 protocol=https`

const routerTimeoutFrame = `<158>1 2022-12-05T08:59:21.850424+00:00 host heroku router - at=error code=H12 desc="Request timeout" method=GET path=/ host=myapp.example.com request_id=8601b555-6a83-4c12-8269-97c8e32cdb22 fwd="204.204.204.204" dyno=web.1 connect=0ms service=30000ms status=503 bytes=0 protocol=https`

func TestParseLine_RouterEnvelope(t *testing.T) {
	p := testParser()

	line, err := p.ParseLine(routerInfoFrame)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	want, _ := time.Parse(time.RFC3339Nano, "2022-12-05T08:59:21.850424+00:00")
	if !line.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", line.Timestamp, want)
	}
	if line.Origin != OriginPlatform {
		t.Errorf("origin = %v, want OriginPlatform", line.Origin)
	}
	if line.Process != "router" {
		t.Errorf("process = %q, want \"router\"", line.Process)
	}
	if !IsRouterLine(line) {
		t.Error("expected a router line")
	}
}

func TestParseLine_AppEnvelope(t *testing.T) {
	p := testParser()

	raw := `111 <190>1 2022-12-05T08:59:21.66229+00:00 host app web.15 - [r9673 d8512f2b] INFO method=GET path=/api/foundation/ status=200 user=875`
	line, err := p.ParseLine(raw)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if line.Origin != OriginApp {
		t.Errorf("origin = %v, want OriginApp", line.Origin)
	}
	if line.Process != "web.15" {
		t.Errorf("process = %q, want \"web.15\"", line.Process)
	}
	if IsRouterLine(line) {
		t.Error("app line must not be recognized as router")
	}
}

func TestParseLine_EmptyMessage(t *testing.T) {
	p := testParser()

	raw := `69 <190>1 2022-12-05T20:26:20.860136+00:00 host app dramatiqworker.2 -`
	line, err := p.ParseLine(raw)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if line.Text != "" {
		t.Errorf("expected empty text, got %q", line.Text)
	}
}

func TestParse_SkipsNonRouterFrames(t *testing.T) {
	p := testParser()

	tests := []string{
		`<190>1 2022-12-05T08:59:21+00:00 host app web.15 - some app output`,
		`<134>1 2022-12-05T09:51:04+00:00 host heroku web.1 - source=web.1 sample#load_avg_1m=0.00`,
		`just some text`,
		``,
	}
	for _, tc := range tests {
		entry, err := p.Parse(tc)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", tc, err)
		}
		if entry != nil {
			t.Errorf("Parse(%q) produced an entry, expected skip", tc)
		}
	}
}

func TestParse_Timeout(t *testing.T) {
	p := testParser()

	entry, err := p.Parse(routerTimeoutFrame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an entry")
	}

	if entry.Method != "GET" {
		t.Errorf("Method = %q, want GET", entry.Method)
	}
	if entry.Path != "/" {
		t.Errorf("Path = %q, want /", entry.Path)
	}
	if entry.Code != "H12" {
		t.Errorf("Code = %q, want H12", entry.Code)
	}
	if entry.Desc != "Request timeout" {
		t.Errorf("Desc = %q", entry.Desc)
	}
	if entry.Status != 503 {
		t.Errorf("Status = %d, want 503", entry.Status)
	}
	if entry.ServiceMs != 30000 {
		t.Errorf("ServiceMs = %v, want 30000", entry.ServiceMs)
	}
	if entry.ConnectMs != 0 {
		t.Errorf("ConnectMs = %v, want 0", entry.ConnectMs)
	}
	if entry.Dyno != "web.1" {
		t.Errorf("Dyno = %q, want web.1", entry.Dyno)
	}
	if entry.RequestID != "8601b555-6a83-4c12-8269-97c8e32cdb22" {
		t.Errorf("RequestID = %q", entry.RequestID)
	}
	if entry.ClientIP() != "204.204.204.204" {
		t.Errorf("ClientIP = %q", entry.ClientIP())
	}
}

func TestParse_QuotedPathKeepsQuery(t *testing.T) {
	p := testParser()

	entry, err := p.Parse(routerInfoFrame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if entry.Path != "/api/disposition/service/?hub=33" {
		t.Errorf("Path = %q", entry.Path)
	}
	if entry.ClientIP() != "80.187.107.115" {
		t.Errorf("ClientIP = %q, want first fwd element", entry.ClientIP())
	}
	if entry.Attrs["protocol"] != "https" {
		t.Error("unknown keys must be preserved in Attrs")
	}
}

func TestParseEntry_MissingRequiredFields(t *testing.T) {
	p := testParser()

	tests := []struct {
		name  string
		text  string
		field string
	}{
		{"no pairs", "just some text", "at"},
		{"missing method", `at=error path=/ service=30000ms status=503`, "method"},
		{"missing path", `at=error method=GET service=30000ms status=503`, "path"},
		{"missing service", `at=error method=GET path=/ status=503`, "service"},
		{"bad service", `at=error method=GET path=/ service=fast status=503`, "service"},
		{"negative connect", `at=error method=GET path=/ connect=-1ms service=10ms status=503`, "connect"},
		{"no outcome", `at=error method=GET path=/ service=30000ms`, "status"},
		{"bad status", `at=error method=GET path=/ service=30000ms status=abc`, "status"},
		{"bad code", `at=error code=XYZ12 method=GET path=/ service=30000ms`, "code"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			line := &Line{Origin: OriginPlatform, Process: "router", Text: tc.text}
			_, err := p.ParseEntry(line)
			if err == nil {
				t.Fatal("expected an extraction error")
			}
			var xe *ExtractionError
			if !errors.As(err, &xe) {
				t.Fatalf("expected *ExtractionError, got %T", err)
			}
			if xe.Field != tc.field {
				t.Errorf("error field = %q, want %q", xe.Field, tc.field)
			}
		})
	}
}

func TestParsePairs(t *testing.T) {
	text := `at=error code=H12 desc="Request timeout" fwd="80.187.107.115,167.82.231.29" sample#memory_total=184.68MB connect=0ms`
	pairs := ParsePairs(text)

	want := map[string]string{
		"at":                  "error",
		"code":                "H12",
		"desc":                "Request timeout",
		"fwd":                 "80.187.107.115,167.82.231.29",
		"sample#memory_total": "184.68MB",
		"connect":             "0ms",
	}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d: %v", len(pairs), len(want), pairs)
	}
	for k, v := range want {
		if pairs[k] != v {
			t.Errorf("pairs[%q] = %q, want %q", k, pairs[k], v)
		}
	}
}

func TestParsePairs_StopsAtNonPair(t *testing.T) {
	pairs := ParsePairs("key=value and some text")
	if len(pairs) != 1 || pairs["key"] != "value" {
		t.Errorf("expected single pair, got %v", pairs)
	}

	if got := ParsePairs("just some text"); got != nil {
		t.Errorf("expected nil for pure text, got %v", got)
	}
}

func TestParseDynoError(t *testing.T) {
	p := testParser()

	tests := []struct {
		text string
		code string
		name string
	}{
		{"Error R10 (Boot timeout) -> Web process failed to bind to $PORT within 60 seconds of launch", "R10", "Boot timeout"},
		{"Error R12 (Exit timeout) -> Process failed to exit within 30 seconds of SIGTERM", "R12", "Exit timeout"},
		{"Error R14 (Memory quota exceeded)", "R14", "Memory quota exceeded"},
		{"Error R15 (Memory quota vastly exceeded)", "R15", "Memory quota vastly exceeded"},
	}
	for _, tc := range tests {
		de, ok := p.ParseDynoError(tc.text)
		if !ok {
			t.Errorf("ParseDynoError(%q) did not match", tc.text)
			continue
		}
		if de.Code != tc.code || de.Name != tc.name {
			t.Errorf("ParseDynoError(%q) = %q/%q, want %q/%q", tc.text, de.Code, de.Name, tc.code, tc.name)
		}
	}

	if _, ok := p.ParseDynoError("State changed from starting to up"); ok {
		t.Error("lifecycle message must not parse as dyno error")
	}
}

func TestParseScaling(t *testing.T) {
	event, ok := ParseScaling("Scaled to web@4:Standard-1X worker@3:Standard-2X by user ops@example.com")
	if !ok {
		t.Fatal("expected scaling event to parse")
	}
	if event.User != "ops@example.com" {
		t.Errorf("User = %q", event.User)
	}
	want := []ProcScale{
		{Proc: "web", Count: 4, Size: "Standard-1X"},
		{Proc: "worker", Count: 3, Size: "Standard-2X"},
	}
	if len(event.Procs) != len(want) {
		t.Fatalf("got %d procs, want %d", len(event.Procs), len(want))
	}
	for i, w := range want {
		if event.Procs[i] != w {
			t.Errorf("proc %d = %+v, want %+v", i, event.Procs[i], w)
		}
	}

	if _, ok := ParseScaling("Scaled to nothing in particular"); ok {
		t.Error("malformed scaling line must not parse")
	}
	if _, ok := ParseScaling("Restarting web.1"); ok {
		t.Error("non-scaling line must not parse")
	}
}

func TestParseMs(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"30000ms", 30000, true},
		{"2ms", 2, true},
		{"2.5ms", 2.5, true},
		{"864", 864, true},
		{"-5ms", 0, false},
		{"fast", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, err := parseMs(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("parseMs(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("parseMs(%q) expected error", tc.in)
		}
	}
}
