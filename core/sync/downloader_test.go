package sync

import (
	"testing"

	core "codechain-core/core"
)

// --- tests ---

func TestHeaderDownloader_RecordImportedAdvancesNextStart(t *testing.T) {
	d := newHeaderDownloader()
	req := d.nextRequest(10)
	if req.StartNumber != 0 || req.MaxCount != 10 {
		t.Fatalf("unexpected initial request: %+v", req)
	}

	h1 := &core.Header{Number: 0}
	h2 := &core.Header{Number: 1}
	d.recordImported([]*core.Header{h1, h2})

	if d.nextStart != 2 {
		t.Fatalf("expected nextStart 2, got %d", d.nextStart)
	}
	if !d.imported[h1.Hash()] || !d.imported[h2.Hash()] {
		t.Fatalf("expected both headers marked imported")
	}
}

func TestBodyDownloader_AddTargetIgnoresDuplicatesAndAssembled(t *testing.T) {
	d := newBodyDownloader()
	h := &core.Header{Number: 1}
	parent := &core.Header{Number: 0}

	d.addTarget(h, parent)
	d.addTarget(h, parent)
	if len(d.targets) != 1 {
		t.Fatalf("expected a single target entry, got %d", len(d.targets))
	}

	body := &core.Body{}
	if _, ok := d.complete(h.Hash(), body); !ok {
		t.Fatalf("expected complete to succeed")
	}
	d.addTarget(h, parent)
	if len(d.targets) != 0 {
		t.Fatalf("expected addTarget to skip an already-assembled header")
	}
}

func TestBodyDownloader_PendingExcludesOutstanding(t *testing.T) {
	d := newBodyDownloader()
	h1 := &core.Header{Number: 1}
	h2 := &core.Header{Number: 2}
	d.addTarget(h1, nil)
	d.addTarget(h2, nil)

	d.markOutstanding(newRequestID(), []core.Hash{h1.Hash()})
	pending := d.pending(10)
	if len(pending) != 1 || pending[0] != h2.Hash() {
		t.Fatalf("expected only h2 pending, got %v", pending)
	}

	d.requeue([]core.Hash{h1.Hash()})
	pending = d.pending(10)
	if len(pending) != 2 {
		t.Fatalf("expected both targets pending after requeue, got %d", len(pending))
	}
}

func TestBodyDownloader_DrainAscendingRespectsGaps(t *testing.T) {
	d := newBodyDownloader()
	h1 := &core.Header{Number: 1}
	h2 := &core.Header{Number: 2}
	h3 := &core.Header{Number: 3}
	body := &core.Body{}

	d.addTarget(h1, nil)
	d.addTarget(h2, nil)
	d.addTarget(h3, nil)

	// Complete 1 and 3 but not 2: nothing should drain past the gap.
	d.complete(h1.Hash(), body)
	d.complete(h3.Hash(), body)

	blocks := d.drainAscending(1)
	if len(blocks) != 1 || blocks[0].Header.Number != 1 {
		t.Fatalf("expected only block 1 to drain, got %d blocks", len(blocks))
	}

	// Now complete 2: both 2 and 3 become drainable in order.
	d.complete(h2.Hash(), body)
	blocks = d.drainAscending(2)
	if len(blocks) != 2 || blocks[0].Header.Number != 2 || blocks[1].Header.Number != 3 {
		t.Fatalf("expected blocks 2 then 3 to drain, got %+v", blocks)
	}
}
