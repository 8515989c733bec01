package gpio

// FakeInput is a test double that returns scripted line levels.
type FakeInput struct {
	// Samples contains scripted raw levels to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
// With no samples the line reads high (idle level of an active-low signal).
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return true, nil
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the scripted samples with a single constant level.
func (f *FakeInput) Set(level bool) {
	f.Samples = []bool{level}
	f.index = 0
}

// FakeOutput records the levels driven onto a line.
type FakeOutput struct {
	// Level is the last driven level.
	Level bool

	// History contains every driven level in order.
	History []bool

	// WriteError, if set, will be returned by High() and Low().
	WriteError error
}

// NewFakeOutput creates a FakeOutput at the given initial level.
func NewFakeOutput(level bool) *FakeOutput {
	return &FakeOutput{Level: level}
}

// High records a high level.
func (f *FakeOutput) High() error {
	return f.drive(true)
}

// Low records a low level.
func (f *FakeOutput) Low() error {
	return f.drive(false)
}

func (f *FakeOutput) drive(level bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Level = level
	f.History = append(f.History, level)
	return nil
}
