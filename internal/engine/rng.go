package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
	"math/rand"
)

// Source supplies the uniform draws used to place bombs.
type Source interface {
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
}

// RandSource is the default Source backed by math/rand.
type RandSource struct {
	r *rand.Rand
}

// NewRandSource returns a math/rand backed Source seeded with seed.
func NewRandSource(seed int64) *RandSource {
	return &RandSource{r: rand.New(rand.NewSource(seed))}
}

// Intn implements Source.
func (s *RandSource) Intn(n int) int {
	return s.r.Intn(n)
}

// ByteGenerator streams bytes from HMAC-SHA256(serverSeed, "clientSeed:nonce:round").
// The same seeds and nonce always yield the same stream, so a board built from
// it can be rebuilt later from the seeds alone.
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a byte generator positioned at cursor.
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the stream.
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat consumes exactly 4 bytes and returns a float in [0, 1).
func (bg *ByteGenerator) NextFloat() float64 {
	return bytesToFloat([4]byte{bg.Next(), bg.Next(), bg.Next(), bg.Next()})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}

// SeededSource is a reproducible Source driven by a ByteGenerator.
type SeededSource struct {
	bg *ByteGenerator
}

// NewSeededSource returns a Source whose draws depend only on the seeds and nonce.
func NewSeededSource(serverSeed, clientSeed string, nonce uint64) *SeededSource {
	return &SeededSource{bg: NewByteGenerator(serverSeed, clientSeed, nonce, 0)}
}

// Intn implements Source.
func (s *SeededSource) Intn(n int) int {
	idx := int(math.Floor(s.bg.NextFloat() * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Floats generates count floats starting from cursor.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	bg := NewByteGenerator(serverSeed, clientSeed, nonce, cursor)
	floats := make([]float64, count)
	for i := range floats {
		floats[i] = bg.NextFloat()
	}
	return floats
}
