package events

import "testing"

func TestBufferTruncateDropsEventsAfterMark(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(ItemListed{})
	mark := buf.Mark()
	buf.Emit(ItemCancelled{})
	buf.Emit(ItemBought{})

	buf.Truncate(mark)
	if buf.Len() != 1 {
		t.Fatalf("expected 1 pending event, got %d", buf.Len())
	}
	buf.Truncate(5)
	drained := buf.Drain()
	if len(drained) != 1 || drained[0].EventType() != TypeItemListed {
		t.Fatalf("unexpected drained events: %#v", drained)
	}

	var _ Checkpointer = buf
}
