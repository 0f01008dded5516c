package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSender struct {
	pings int32
	texts int32
}

func (s *countingSender) SendControlPing(payload []byte) error {
	atomic.AddInt32(&s.pings, 1)
	return nil
}

func (s *countingSender) SendText(msg string) error {
	atomic.AddInt32(&s.texts, 1)
	return nil
}

func TestEngineSendsControlPingsAndRespondsToPong(t *testing.T) {
	sender := &countingSender{}
	var failed int32
	e := New(Config{Mode: ControlPing, Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond},
		sender, func() { atomic.StoreInt32(&failed, 1) }, zerolog.Nop())

	e.Start()
	defer e.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for atomic.LoadInt32(&sender.pings) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		e.NotifyPong() // keep liveness so the test doesn't trip onFail
	}

	if atomic.LoadInt32(&sender.pings) == 0 {
		t.Fatalf("expected at least one control ping to be sent")
	}
	if atomic.LoadInt32(&failed) != 0 {
		t.Fatalf("did not expect onFail to be invoked while pongs arrive")
	}
}

func TestEngineFailsOnPongTimeout(t *testing.T) {
	sender := &countingSender{}
	failed := make(chan struct{})
	e := New(Config{Mode: ControlPing, Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond},
		sender, func() { close(failed) }, zerolog.Nop())

	e.Start()
	defer e.Stop()

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected onFail to fire after pong timeout")
	}
}

func TestEngineDisabledSendsNothing(t *testing.T) {
	sender := &countingSender{}
	e := New(Config{Mode: Disabled}, sender, func() {}, zerolog.Nop())
	e.Start()
	time.Sleep(30 * time.Millisecond)
	e.Stop()

	if atomic.LoadInt32(&sender.pings) != 0 || atomic.LoadInt32(&sender.texts) != 0 {
		t.Fatalf("expected no pings to be sent while disabled")
	}
}

func TestEngineReconfigureSwitchesToTextMode(t *testing.T) {
	sender := &countingSender{}
	e := New(Config{Mode: Disabled}, sender, func() {}, zerolog.Nop())
	e.Start()
	defer e.Stop()

	e.Reconfigure(Config{Mode: TextPing, Interval: 10 * time.Millisecond, Timeout: time.Second, TextMessage: "ping"})

	deadline := time.Now().Add(500 * time.Millisecond)
	for atomic.LoadInt32(&sender.texts) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		e.NotifyPong()
	}
	if atomic.LoadInt32(&sender.texts) == 0 {
		t.Fatalf("expected text ping to be sent after reconfiguration")
	}
}
