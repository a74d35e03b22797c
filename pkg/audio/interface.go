package audio

import "time"

// Info contains metadata about an audio file.
type Info struct {
	FilePath   string
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitRate    int
	Size       int64
}

// Seconds returns the audio duration in seconds.
func (i *Info) Seconds() float64 {
	return i.Duration.Seconds()
}

// Processor handles audio file validation and preprocessing.
type Processor interface {
	// Probe extracts metadata from an audio file
	Probe(filePath string) (*Info, error)

	// ConvertToWAV transcodes the input into the mono processing-rate WAV
	// format and returns the converted file path
	ConvertToWAV(inputPath string) (string, error)

	// IsSupported checks if the file extension is allowed
	IsSupported(filePath string) bool

	// ValidateFile validates the audio file
	ValidateFile(filePath string) error
}
