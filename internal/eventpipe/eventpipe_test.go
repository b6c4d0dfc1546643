package eventpipe

import (
	"sync"
	"testing"
)

// S7: the sequence of records read equals the sequence of records
// written by a single writer thread.
func TestPipeSingleWriterOrderPreserved(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			p.Write(Record{Type: Key, KeySym: uint32(i), Pressed: i%2 == 0})
		}
	}()

	for i := 0; i < n; i++ {
		rec, err := p.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if rec.Type != Key || rec.KeySym != uint32(i) {
			t.Fatalf("record %d out of order or corrupted: %+v", i, rec)
		}
	}
}

// S6 (partial, eventpipe layer): two threads each push 1000 KEY
// records; the reader observes exactly 2000 records and each
// producer's subsequence is internally ordered (total interleaving
// order across producers is not guaranteed).
func TestPipeMultiProducerSubsequenceOrder(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	const perProducer = 1000
	var wg sync.WaitGroup
	wg.Add(2)
	for producer := 0; producer < 2; producer++ {
		go func(tag uint32) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				p.Write(Record{Type: Key, KeySym: tag<<16 | uint32(i)})
			}
		}(uint32(producer + 1))
	}

	lastSeen := map[uint32]int{1: -1, 2: -1}
	total := 0
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	for total < perProducer*2 {
		rec, err := p.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		tag := rec.KeySym >> 16
		idx := int(rec.KeySym & 0xFFFF)
		if idx <= lastSeen[tag] {
			t.Fatalf("producer %d subsequence out of order: saw %d after %d", tag, idx, lastSeen[tag])
		}
		lastSeen[tag] = idx
		total++
	}
	<-done
}

func TestClipboardPayloadOwnershipTransfer(t *testing.T) {
	payloads := NewPayloads()
	id := payloads.Store([]byte("hello"))

	data, ok := payloads.Take(id)
	if !ok || string(data) != "hello" {
		t.Fatalf("Take returned (%q, %v), want (\"hello\", true)", data, ok)
	}

	if _, ok := payloads.Take(id); ok {
		t.Fatalf("expected second Take of the same id to fail (ownership already transferred)")
	}
}
