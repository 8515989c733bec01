package serialport

// FakePort is a test double with a scripted receive buffer.
type FakePort struct {
	// Pending holds bytes not yet consumed.
	Pending []byte

	// Baud is the rate passed to the last successful Begin.
	Baud int

	// Begins counts calls to Begin.
	Begins int

	// BeginError, if set, will be returned by Begin.
	BeginError error

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, is reported by Err until the next Begin.
	ReadError error
}

// NewFakePort creates a FakePort with nothing buffered.
func NewFakePort() *FakePort {
	return &FakePort{}
}

// Begin records the baud rate.
func (f *FakePort) Begin(baud int) error {
	f.Begins++
	if f.BeginError != nil {
		return f.BeginError
	}
	f.Baud = baud
	f.Closed = false
	f.ReadError = nil
	return nil
}

// Feed appends bytes to the receive buffer.
func (f *FakePort) Feed(b []byte) {
	f.Pending = append(f.Pending, b...)
}

// FeedString appends a string to the receive buffer.
func (f *FakePort) FeedString(s string) {
	f.Feed([]byte(s))
}

// Available returns the number of pending bytes.
func (f *FakePort) Available() int {
	return len(f.Pending)
}

// ReadByte consumes one pending byte.
func (f *FakePort) ReadByte() (byte, error) {
	if len(f.Pending) == 0 {
		return 0, ErrNoData
	}
	b := f.Pending[0]
	f.Pending = f.Pending[1:]
	return b, nil
}

// Err returns ReadError.
func (f *FakePort) Err() error {
	return f.ReadError
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.Closed = true
	return nil
}
