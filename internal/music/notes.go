package music

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// sampleFiles maps every playable pitch to its backing sample. The set is
// fixed: only pitches with a recorded guitar sample can be triggered.
var sampleFiles = map[string]string{
	"A2":  "samples/A2.mp3",
	"A#2": "samples/As2.mp3",
	"B2":  "samples/B2.mp3",
	"C3":  "samples/C3.mp3",
	"C#3": "samples/Cs3.mp3",
	"D2":  "samples/D2.mp3",
	"D3":  "samples/D3.mp3",
	"D#2": "samples/Ds2.mp3",
	"D#3": "samples/Ds3.mp3",
	"E2":  "samples/E2.mp3",
	"E3":  "samples/E3.mp3",
	"F2":  "samples/F2.mp3",
	"F3":  "samples/F3.mp3",
	"F#2": "samples/Fs2.mp3",
	"F#3": "samples/Fs3.mp3",
	"G2":  "samples/G2.mp3",
	"G3":  "samples/G3.mp3",
	"G#2": "samples/Gs2.mp3",
	"G#3": "samples/Gs3.mp3",
	"A3":  "samples/A3.mp3",
	"A#3": "samples/As3.mp3",
	"B3":  "samples/B3.mp3",
	"C4":  "samples/C4.mp3",
	"C#4": "samples/Cs4.mp3",
	"D4":  "samples/D4.mp3",
	"D#4": "samples/Ds4.mp3",
	"E4":  "samples/E4.mp3",
	"F4":  "samples/F4.mp3",
	"F#4": "samples/Fs4.mp3",
	"G4":  "samples/G4.mp3",
	"G#4": "samples/Gs4.mp3",
	"A4":  "samples/A4.mp3",
	"A#4": "samples/As4.mp3",
	"B4":  "samples/B4.mp3",
	"C5":  "samples/C5.mp3",
	"C#5": "samples/Cs5.mp3",
	"D5":  "samples/D5.mp3",
}

// durationSeconds gives the length of each musical duration token at 120 BPM.
// A trailing dot extends the plain value by half.
var durationSeconds = map[string]float64{
	"1n":  2.0,
	"2n":  1.0,
	"2n.": 1.5,
	"4n":  0.5,
	"4n.": 0.75,
	"8n":  0.25,
	"8n.": 0.375,
	"16n": 0.125,
}

// Note is one scheduled playable pitch event.
type Note struct {
	Name     string  `json:"note"`
	Duration string  `json:"duration"`
	Velocity float64 `json:"velocity"`
	Pan      float64 `json:"pan,omitempty"`
	Reverb   bool    `json:"reverb,omitempty"`
	Delay    bool    `json:"delay,omitempty"`
	Time     float64 `json:"time,omitempty"`
}

// Validate checks the note against the fixed pitch and duration sets.
func (n Note) Validate() error {
	if _, ok := sampleFiles[n.Name]; !ok {
		return fmt.Errorf("unknown pitch %q", n.Name)
	}
	if _, ok := durationSeconds[n.Duration]; !ok {
		return fmt.Errorf("unknown duration %q", n.Duration)
	}
	if n.Velocity < 0 || n.Velocity > 1 {
		return fmt.Errorf("velocity %v out of range [0,1]", n.Velocity)
	}
	if n.Pan < -1 || n.Pan > 1 {
		return fmt.Errorf("pan %v out of range [-1,1]", n.Pan)
	}
	if n.Time < 0 {
		return errors.New("time offset cannot be negative")
	}
	return nil
}

// Length returns how long the note sounds.
func (n Note) Length() (time.Duration, error) {
	secs, ok := durationSeconds[n.Duration]
	if !ok {
		return 0, fmt.Errorf("unknown duration %q", n.Duration)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// SamplePath resolves the sample file backing a pitch.
func SamplePath(pitch string) (string, bool) {
	path, ok := sampleFiles[pitch]
	return path, ok
}

// Pitches lists every playable pitch name in sorted order.
func Pitches() []string {
	names := make([]string, 0, len(sampleFiles))
	for name := range sampleFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Durations lists every accepted duration token in sorted order.
func Durations() []string {
	tokens := make([]string, 0, len(durationSeconds))
	for token := range durationSeconds {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
