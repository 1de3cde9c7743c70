package modem_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"i4.energy/across/drivetest/modem"
)

const (
	sockInfo   = "#SI: 1,11,11,0,0"
	sockStatus = "#SS: 1,2,10.0.0.2,5000,195.34.89.241,7"
	dialCmd    = `AT#SD=1,0,7,"echo.u-blox.com",0,0,1`
	recvCmd    = "AT#SRECV=1,1500"
)

func scriptProbe(tr *modem.TestTransport, echo bool) {
	tr.Respond("AT#SGACT?", "#SGACT: 1,1\r\n\r\nOK\r\n")
	tr.Respond(dialCmd, "OK\r\n")
	tr.Respond("AT#SSEND=1", "> ")
	tr.Respond("\x1a", "\r\nOK\r\n")
	if echo {
		tr.Respond(recvCmd, "#SRECV: 1,11\r\nTCP_TEST_OK\r\n\r\nOK\r\n")
	} else {
		tr.Respond(recvCmd, "\r\nERROR\r\n")
	}
	tr.Respond("AT#SI", sockInfo+"\r\n#SI: 2,0,0,0,0\r\n\r\nOK\r\n")
	tr.Respond("AT#SS", "#SS: 2,0\r\n"+sockStatus+"\r\n\r\nOK\r\n")
	tr.Respond("AT#SH=1", "OK\r\n")
}

func TestProbe(t *testing.T) {
	t.Run("Echo received", func(t *testing.T) {
		tr := modem.NewTestTransport()
		scriptProbe(tr, true)
		m := newTestModem(t, tr)

		result := m.Probe(context.Background())
		want := "#MSG: TCP_TEST_OK " + sockInfo + " " + sockStatus
		if got := result.String(); got != want {
			t.Errorf("expected summary %q, got %q", want, got)
		}
		if failed := result.Failed(); len(failed) != 0 {
			t.Errorf("unexpected failed stages: %+v", failed)
		}
		if n := len(result.Stages); n != 9 {
			t.Errorf("expected 9 stages, got %d", n)
		}
	})

	t.Run("No data", func(t *testing.T) {
		tr := modem.NewTestTransport()
		scriptProbe(tr, false)
		m := newTestModem(t, tr)

		result := m.Probe(context.Background())
		want := "#MSG: None " + sockInfo + " " + sockStatus
		if got := result.String(); got != want {
			t.Errorf("expected summary %q, got %q", want, got)
		}
		failed := result.Failed()
		if len(failed) != 1 || failed[0].Stage != modem.StageReceive {
			t.Fatalf("expected only the receive stage to fail, got %+v", failed)
		}
		if err := failed[0].Err; !errors.Is(err, modem.ErrProbeStage) || !strings.HasSuffix(err.Error(), "receive: ERROR") {
			t.Errorf("expected the ERROR result code in %v", err)
		}
	})

	t.Run("Silent modem still runs every stage", func(t *testing.T) {
		tr := modem.NewTestTransport()
		m := newTestModem(t, tr)

		result := m.Probe(context.Background())
		if got := result.String(); got != "#MSG: None" {
			t.Errorf("expected bare no-data summary, got %q", got)
		}
		if n := len(tr.Writes()); n != 9 {
			t.Errorf("expected 9 commands, got %d", n)
		}
		failed := result.Failed()
		if len(failed) != 8 {
			t.Errorf("expected every checked stage to fail, got %d", len(failed))
		}
		for _, s := range failed {
			if !errors.Is(s.Err, modem.ErrProbeStage) {
				t.Errorf("stage %s: expected ErrProbeStage, got %v", s.Stage, s.Err)
			}
		}
	})
}

func TestPump(t *testing.T) {
	payload := modem.PumpPayload

	t.Run("Sends count payloads", func(t *testing.T) {
		tr := modem.NewTestTransport()
		tr.Respond("AT#SSEND=1", "> ")
		tr.Respond(payload, "\r\nOK\r\n")
		m := newTestModem(t, tr)

		result := m.Pump(context.Background(), 3)
		if result.Sent != 3 || result.Stopped {
			t.Errorf("unexpected result: %+v", result)
		}
		writes := tr.Writes()
		if writes[0] != "AT#SGACT=1,1" || writes[1] != dialCmd {
			t.Errorf("unexpected burst preamble: %q", writes[:2])
		}
		if last := writes[len(writes)-1]; last != "AT#SH=1" {
			t.Errorf("burst must end with socket shutdown, got %q", last)
		}
		if n := tr.Count(payload); n != 3 {
			t.Errorf("expected 3 payloads, got %d", n)
		}
	})

	t.Run("Stops at first unacknowledged send", func(t *testing.T) {
		tr := modem.NewTestTransport()
		tr.Respond("AT#SSEND=1", "> ")
		tr.Respond(payload, "OK\r\n", "OK\r\n", "ERROR\r\n", "OK\r\n")
		m := newTestModem(t, tr)

		result := m.Pump(context.Background(), 5)
		if result.Sent != 2 || result.Attempted != 3 || !result.Stopped {
			t.Errorf("unexpected result: %+v", result)
		}
		if n := tr.Count("AT#SH=1"); n != 1 {
			t.Errorf("expected socket shutdown, got %d", n)
		}
	})

	t.Run("Shuts down the socket after cancellation", func(t *testing.T) {
		tr := modem.NewTestTransport()
		m := newTestModem(t, tr)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := m.Pump(ctx, 5)
		if result.Attempted != 0 {
			t.Errorf("expected no sends after cancellation, got %d", result.Attempted)
		}
		if n := tr.Count("AT#SH=1"); n != 1 {
			t.Errorf("expected socket shutdown, got %d", n)
		}
	})
}

func TestSetRadio(t *testing.T) {
	tr := modem.NewTestTransport()
	scriptOK(tr, "AT+CFUN=1", "AT+CFUN=4")
	m := newTestModem(t, tr)

	if res := m.SetRadio(context.Background(), true); !res.OK() {
		t.Errorf("enable: unexpected result %+v", res)
	}
	if res := m.SetRadio(context.Background(), false); !res.OK() {
		t.Errorf("disable: unexpected result %+v", res)
	}
	writes := tr.Writes()
	if len(writes) != 2 || writes[0] != "AT+CFUN=1" || writes[1] != "AT+CFUN=4" {
		t.Errorf("unexpected commands: %q", writes)
	}
}
