package events

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
)

type collector struct {
	got []Event
}

func (c *collector) Emit(evt Event) { c.got = append(c.got, evt) }

func key(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, solana.PublicKeyLength))
}

func TestTransferEvent(t *testing.T) {
	evt := Transfer{From: key(1), To: key(2), Amount: 42}.Event()
	if evt.Type != TypeTransfer {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["from"] != key(1).String() || evt.Attributes["to"] != key(2).String() {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["amount"] != "42" {
		t.Fatalf("unexpected amount: %s", evt.Attributes["amount"])
	}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(Transfer{From: key(1), To: key(2), Amount: 1})
	buf.Emit(Airdrop{To: key(3), Amount: 2})
	buf.Emit(nil)

	if n := len(buf.Events()); n != 2 {
		t.Fatalf("expected 2 buffered events, got %d", n)
	}
	payloads := ToPayloads(buf.Events())
	if payloads[0].Type != TypeTransfer || payloads[1].Type != TypeAirdrop {
		t.Fatalf("unexpected payload order: %s, %s", payloads[0].Type, payloads[1].Type)
	}

	sink := &collector{}
	buf.Flush(sink)
	if len(sink.got) != 2 {
		t.Fatalf("expected 2 flushed events, got %d", len(sink.got))
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not cleared after flush")
	}
}
