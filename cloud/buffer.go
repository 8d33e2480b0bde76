package cloud

// Buffer is a bounded FIFO of unsent records. Inserting past capacity
// evicts the oldest entry: recent data is worth more than old data when
// the link has been down a while.
type Buffer struct {
	records []Record
	cap     int
}

// NewBuffer returns a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{cap: capacity}
}

// Append queues a record, evicting the oldest when full.
func (b *Buffer) Append(r Record) {
	if len(b.records) >= b.cap {
		b.records = b.records[1:]
	}
	b.records = append(b.records, r)
}

// Oldest returns the next record to deliver.
func (b *Buffer) Oldest() (Record, bool) {
	if len(b.records) == 0 {
		return Record{}, false
	}
	return b.records[0], true
}

// DropOldest removes the head after confirmed delivery.
func (b *Buffer) DropOldest() {
	if len(b.records) > 0 {
		b.records = b.records[1:]
	}
}

// Len is the number of queued records.
func (b *Buffer) Len() int { return len(b.records) }

// Cap is the configured capacity.
func (b *Buffer) Cap() int { return b.cap }
