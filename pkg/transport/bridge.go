package transport

import (
	"encoding/json"
	"errors"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// Pipeline is the subset of *orchestrator.Pipeline the bridge drives; kept
// as an interface so tests can swap in a double without a real Session.
type Pipeline interface {
	Write(chunk []byte) error
	Events() <-chan orchestrator.SessionEvent
	Interrupt() uint64
	Close()
}

// Serve bridges t and p until either side closes: inbound audio frames
// are fed to p.Write, inbound `cancel` control frames trigger p.Interrupt,
// and every Pipeline event is translated via EventToFrame and written back
// out on t. Serve blocks until Recv returns an error (idle timeout, client
// disconnect, or t.Close from elsewhere) and always leaves p closed.
func Serve(t Transport, p Pipeline) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range p.Events() {
			ft, ok := EventToFrame(ev.Type)
			if !ok {
				continue
			}
			if ev.Type == orchestrator.EventAudioChunk {
				audio, _ := ev.Data.([]byte)
				_ = t.Send(ControlFrame{Type: ft, Epoch: ev.Epoch}, audio)
				continue
			}
			payload, _ := json.Marshal(ev.Data)
			_ = t.Send(ControlFrame{Type: ft, Epoch: ev.Epoch, Payload: payload}, nil)
		}
	}()

	var recvErr error
loop:
	for {
		in, err := t.Recv()
		if err != nil {
			recvErr = err
			break loop
		}
		switch in.Kind {
		case InboundAudio:
			_ = p.Write(in.Audio)
		case InboundControl:
			switch in.Frame.Type {
			case orchestrator.FrameCancel:
				p.Interrupt()
			case orchestrator.FrameStopStream:
				break loop
			}
		}
	}

	p.Close()
	<-done
	if errors.Is(recvErr, ErrClosed) {
		return nil
	}
	return recvErr
}
