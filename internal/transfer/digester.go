package transfer

// DefaultMime is assumed when a header carries no mime type.
const DefaultMime = "application/octet-stream"

// Artifact is a fully reassembled inbound transfer.
type Artifact struct {
	Name string
	Mime string
	Size int64
	Data []byte
}

// Digester reassembles an ordered chunk sequence into an artifact. It owns
// its chunk buffers exclusively; completion fires exactly once, when the
// received byte count reaches the declared size.
type Digester struct {
	name       string
	mime       string
	size       int64
	chunks     [][]byte
	received   int64
	progress   float64
	done       bool
	onComplete func(*Artifact)
}

// NewDigester starts an inbound transfer. A zero-size transfer completes
// immediately: onComplete fires before the constructor returns.
func NewDigester(name, mime string, size int64, onComplete func(*Artifact)) *Digester {
	if mime == "" {
		mime = DefaultMime
	}
	d := &Digester{
		name:       name,
		mime:       mime,
		size:       size,
		onComplete: onComplete,
	}
	if size == 0 {
		d.complete()
	}
	return d
}

// Unchunk appends one chunk. A chunk that would push the byte count past
// the declared size is a protocol violation and is rejected.
func (d *Digester) Unchunk(chunk []byte) error {
	if d.done || d.received+int64(len(chunk)) > d.size {
		return NewFileError("unchunk", d.name, ErrSizeExceeded)
	}

	// Own the bytes: transports reuse their receive buffers.
	owned := make([]byte, len(chunk))
	copy(owned, chunk)
	d.chunks = append(d.chunks, owned)
	d.received += int64(len(owned))
	d.progress = float64(d.received) / float64(d.size)

	if d.received >= d.size {
		d.complete()
	}
	return nil
}

func (d *Digester) complete() {
	d.done = true
	d.progress = 1

	data := make([]byte, 0, d.size)
	for _, c := range d.chunks {
		data = append(data, c...)
	}
	d.chunks = nil

	if d.onComplete != nil {
		d.onComplete(&Artifact{Name: d.name, Mime: d.mime, Size: d.size, Data: data})
	}
}

// Progress is the received fraction of the declared size.
func (d *Digester) Progress() float64 {
	return d.progress
}

// Done reports whether the transfer has completed.
func (d *Digester) Done() bool {
	return d.done
}
