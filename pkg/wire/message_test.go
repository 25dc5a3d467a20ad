package wire_test

import (
	"bytes"
	"testing"

	"github.com/RonIovine/pshell-sub001/pkg/wire"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	msgs := []*wire.Message{
		{Type: wire.UserCommand, RespNeeded: true, Seq: 1, Payload: "echo hello world"},
		{Type: wire.CommandComplete, Seq: 42, Payload: ""},
		{Type: wire.QueryCommands2, DataNeeded: true, Seq: 7, Payload: "help/quit/history"},
	}

	for _, want := range msgs {
		buf := want.Marshal()

		got, err := wire.Unmarshal(buf)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}

		if got.Type != want.Type || got.RespNeeded != want.RespNeeded ||
			got.DataNeeded != want.DataNeeded || got.Seq != want.Seq || got.Payload != want.Payload {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	if _, err := wire.Unmarshal([]byte{1, 2, 3}); err != wire.ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestHeaderByteLayout(t *testing.T) {
	m := &wire.Message{Type: wire.QueryVersion, RespNeeded: true, Seq: 0x01020304, Payload: "x"}
	buf := m.Marshal()

	want := []byte{byte(wire.QueryVersion), 1, 0, 0, 0x04, 0x03, 0x02, 0x01, 'x'}
	if !bytes.Equal(buf, want) {
		t.Fatalf("unexpected wire layout: got % x, want % x", buf, want)
	}
}

func TestWriteFrameReadFrameLength(t *testing.T) {
	m := &wire.Message{Type: wire.UserCommand, Seq: 5, Payload: "batch file.txt"}
	framed := wire.WriteFrame(m)

	n, err := wire.ReadFrameLength(framed[:4])
	if err != nil {
		t.Fatalf("ReadFrameLength: %v", err)
	}
	if int(n) != m.FramedSize() {
		t.Fatalf("frame length = %d, want %d", n, m.FramedSize())
	}

	got, err := wire.Unmarshal(framed[4 : 4+n])
	if err != nil {
		t.Fatalf("Unmarshal framed body: %v", err)
	}
	if got.Payload != m.Payload {
		t.Fatalf("payload = %q, want %q", got.Payload, m.Payload)
	}
}
