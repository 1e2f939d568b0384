package music

import "math/rand"

// phraseDurations favors quarter and eighth notes so generated phrases feel
// musical rather than uniformly random.
var phraseDurations = []string{"4n", "4n", "4n", "8n", "8n", "16n"}

// RandomPhrase generates a practice phrase of count playable notes.
func RandomPhrase(count int) []Note {
	pitches := Pitches()
	notes := make([]Note, 0, count)
	for i := 0; i < count; i++ {
		notes = append(notes, Note{
			Name:     pitches[rand.Intn(len(pitches))],
			Duration: phraseDurations[rand.Intn(len(phraseDurations))],
			Velocity: 0.8,
		})
	}
	return notes
}
