package transport

import (
	"testing"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

type fakeTransport struct {
	inbound chan Inbound
	sent    chan ControlFrame
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan Inbound, 16), sent: make(chan ControlFrame, 16)}
}

func (f *fakeTransport) Send(frame ControlFrame, audio []byte) error {
	f.sent <- frame
	return nil
}

func (f *fakeTransport) Recv() (Inbound, error) {
	in, ok := <-f.inbound
	if !ok {
		return Inbound{}, ErrClosed
	}
	return in, nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.closed = true
	return nil
}

type fakePipeline struct {
	events      chan orchestrator.SessionEvent
	written     [][]byte
	interrupted int
	closed      bool
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{events: make(chan orchestrator.SessionEvent, 16)}
}

func (f *fakePipeline) Write(chunk []byte) error {
	f.written = append(f.written, chunk)
	return nil
}
func (f *fakePipeline) Events() <-chan orchestrator.SessionEvent { return f.events }
func (f *fakePipeline) Interrupt() uint64                        { f.interrupted++; return 1 }
func (f *fakePipeline) Close() {
	f.closed = true
	close(f.events)
}

func TestServeForwardsAudioAndControl(t *testing.T) {
	tr := newFakeTransport()
	p := newFakePipeline()

	tr.inbound <- Inbound{Kind: InboundAudio, Audio: []byte{1, 2, 3}}
	tr.inbound <- Inbound{Kind: InboundControl, Frame: ControlFrame{Type: orchestrator.FrameCancel}}
	close(tr.inbound)

	if err := Serve(tr, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.written) != 1 {
		t.Fatalf("expected one audio write, got %d", len(p.written))
	}
	if p.interrupted != 1 {
		t.Fatalf("expected one interrupt, got %d", p.interrupted)
	}
	if !p.closed {
		t.Fatal("expected pipeline to be closed")
	}
}

func TestServeTranslatesEventsToFrames(t *testing.T) {
	tr := newFakeTransport()
	p := newFakePipeline()

	go func() {
		p.events <- orchestrator.SessionEvent{Type: orchestrator.EventTranscriptFinal, Epoch: 1, Data: "hello"}
		p.events <- orchestrator.SessionEvent{Type: orchestrator.EventAudioChunk, Epoch: 1, Data: []byte{9, 9}}
		close(tr.inbound)
	}()

	if err := Serve(tr, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []ControlFrame
	for {
		select {
		case f := <-tr.sent:
			got = append(got, f)
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d: %+v", len(got), got)
	}
	if got[0].Type != orchestrator.FrameASRFinal {
		t.Errorf("frame 0 type = %s, want %s", got[0].Type, orchestrator.FrameASRFinal)
	}
	if got[1].Type != orchestrator.FrameTTSChunk {
		t.Errorf("frame 1 type = %s, want %s", got[1].Type, orchestrator.FrameTTSChunk)
	}
}

func TestServeStopsOnStopStreamFrame(t *testing.T) {
	tr := newFakeTransport()
	p := newFakePipeline()

	tr.inbound <- Inbound{Kind: InboundControl, Frame: ControlFrame{Type: orchestrator.FrameStopStream}}

	if err := Serve(tr, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.closed {
		t.Fatal("expected pipeline to be closed after stop_stream")
	}
}
