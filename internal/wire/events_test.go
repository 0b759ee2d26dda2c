// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"errors"
	"testing"
)

func TestDecodeEvent_Status(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "status", Data: `{"data":"Retrieving context..."}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	status, ok := ev.(StatusEvent)
	if !ok {
		t.Fatalf("expected StatusEvent, got %T", ev)
	}
	if status.Text != "Retrieving context..." {
		t.Errorf("unexpected text: %q", status.Text)
	}
}

func TestDecodeEvent_TypeFieldBeatsFrameEvent(t *testing.T) {
	// The payload says token even though the frame says status.
	ev, err := DecodeEvent(Frame{Event: "status", Data: `{"type":"token","data":"Hi"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	token, ok := ev.(TokenEvent)
	if !ok {
		t.Fatalf("expected TokenEvent, got %T", ev)
	}
	if token.Text != "Hi" {
		t.Errorf("unexpected text: %q", token.Text)
	}
}

func TestDecodeEvent_FrameEventUsedWhenTypeOmitted(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "token", Data: `{"data":"chunk"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if _, ok := ev.(TokenEvent); !ok {
		t.Fatalf("expected TokenEvent, got %T", ev)
	}
}

func TestDecodeEvent_Trace(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "trace", Data: `{"html":"<div>search</div>"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	trace, ok := ev.(TraceEvent)
	if !ok {
		t.Fatalf("expected TraceEvent, got %T", ev)
	}
	if trace.Markup != "<div>search</div>" {
		t.Errorf("unexpected markup: %q", trace.Markup)
	}
}

func TestDecodeEvent_ThoughtMessageFallback(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "thought", Data: `{"message":"considering options"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	thought := ev.(ThoughtEvent)
	if thought.Text != "considering options" {
		t.Errorf("expected message fallback, got %q", thought.Text)
	}

	// data wins when both are present.
	ev, err = DecodeEvent(Frame{Event: "thought", Data: `{"data":"a","message":"b"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.(ThoughtEvent).Text != "a" {
		t.Errorf("expected data to win over message")
	}
}

func TestDecodeEvent_Understanding(t *testing.T) {
	inner := `{\"tldr\":\"A summary\",\"keyPoints\":[\"one\",\"two\"]}`
	ev, err := DecodeEvent(Frame{Event: "understanding", Data: `{"data":"` + inner + `"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	u, ok := ev.(UnderstandingEvent)
	if !ok {
		t.Fatalf("expected UnderstandingEvent, got %T", ev)
	}
	if u.Summary.TLDR != "A summary" {
		t.Errorf("unexpected tldr: %q", u.Summary.TLDR)
	}
	if len(u.Summary.KeyPoints) != 2 {
		t.Errorf("unexpected key points: %v", u.Summary.KeyPoints)
	}
}

func TestDecodeEvent_UnderstandingUnparseableDegrades(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "understanding", Data: `{"data":"not json at all"}`})
	if err != nil {
		t.Fatalf("an unparseable inner summary must not fail the frame: %v", err)
	}
	u := ev.(UnderstandingEvent)
	if !u.Summary.IsEmpty() {
		t.Errorf("expected empty summary, got %+v", u.Summary)
	}
}

func TestDecodeEvent_Final(t *testing.T) {
	data := `{"type":"final","content":"Answer.","html":"<p>Answer.</p>","modelUsed":"halcyon-large","sessionId":"sess-1","turn":4}`
	ev, err := DecodeEvent(Frame{Data: data})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	final, ok := ev.(FinalEvent)
	if !ok {
		t.Fatalf("expected FinalEvent, got %T", ev)
	}
	if final.Content != "Answer." || final.Markup != "<p>Answer.</p>" {
		t.Errorf("unexpected content/markup: %+v", final)
	}
	if final.Model != "halcyon-large" || final.SessionID != "sess-1" || final.Turn != 4 {
		t.Errorf("unexpected metadata: %+v", final)
	}
}

func TestDecodeEvent_FinalContentHTMLFallback(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "final", Data: `{"contentHtml":"<p>alt</p>"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.(FinalEvent).Markup != "<p>alt</p>" {
		t.Errorf("expected contentHtml fallback")
	}

	// html wins when both are present.
	ev, err = DecodeEvent(Frame{Event: "final", Data: `{"html":"<p>a</p>","contentHtml":"<p>b</p>"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.(FinalEvent).Markup != "<p>a</p>" {
		t.Errorf("expected html to win over contentHtml")
	}
}

func TestDecodeEvent_ErrorMessageFallback(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "error", Data: `{"message":"backend overloaded"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.(ErrorEvent).Message != "backend overloaded" {
		t.Errorf("expected message fallback")
	}

	ev, err = DecodeEvent(Frame{Event: "error", Data: `{"data":"primary","message":"secondary"}`})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.(ErrorEvent).Message != "primary" {
		t.Errorf("expected data to win over message")
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	cases := []Frame{
		{Event: "token", Data: "not json"},
		{Event: "mystery", Data: `{"data":"x"}`},
		{Event: "", Data: `{"data":"no type anywhere"}`},
	}
	for _, f := range cases {
		if _, err := DecodeEvent(f); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("frame %+v: expected ErrMalformedFrame, got %v", f, err)
		}
	}
}

func TestTerminal(t *testing.T) {
	cases := []struct {
		ev       Event
		terminal bool
	}{
		{StatusEvent{}, false},
		{TraceEvent{}, false},
		{TokenEvent{}, false},
		{ThoughtEvent{}, false},
		{UnderstandingEvent{}, false},
		{FinalEvent{}, true},
		{ErrorEvent{}, true},
	}
	for _, c := range cases {
		if got := Terminal(c.ev); got != c.terminal {
			t.Errorf("Terminal(%T) = %v, want %v", c.ev, got, c.terminal)
		}
	}
}
