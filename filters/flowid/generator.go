package flowid

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

const (
	flowIdAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-+"
	alphabetBitMask = 63
	MaxLength       = 64
	MinLength       = 8
	defaultLen      = 16
)

var (
	ErrInvalidLen       = fmt.Errorf("invalid length, must be between %d and %d", MinLength, MaxLength)
	standardFlowIDRegex = regexp.MustCompile(`^[0-9a-zA-Z+-]+$`)
)

// Generator is implemented by the types that can generate flow ids.
type Generator interface {
	// Generate returns a new flow id.
	Generate() (string, error)

	// IsValid checks that a flow id has the format of the generator.
	IsValid(string) bool
}

type standardGenerator struct {
	length int
}

// NewStandardGenerator creates a generator of random flow ids with
// length l. A single random 64 bit value is split into chunks of 6 bits,
// each indexing the 64 character alphabet.
func NewStandardGenerator(l int) (Generator, error) {
	if l < MinLength || l > MaxLength {
		return nil, ErrInvalidLen
	}

	return &standardGenerator{length: l}, nil
}

func (g *standardGenerator) Generate() (string, error) {
	u := make([]byte, g.length)
	for i := 0; i < g.length; i += 10 {
		b := rand.Int64() // #nosec
		for e := 0; e < 10 && i+e < g.length; e++ {
			c := byte(b>>uint(6*e)) & alphabetBitMask // 6 bits only
			u[i+e] = flowIdAlphabet[c]
		}
	}

	return string(u), nil
}

func (g *standardGenerator) IsValid(flowId string) bool {
	return len(flowId) >= MinLength && len(flowId) <= MaxLength && standardFlowIDRegex.MatchString(flowId)
}

type uuidGenerator struct{}

// NewUUIDGenerator creates a generator of random (version 4) UUIDs.
func NewUUIDGenerator() Generator { return uuidGenerator{} }

func (uuidGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (uuidGenerator) IsValid(flowId string) bool {
	_, err := uuid.Parse(flowId)
	return err == nil && len(flowId) == 36
}

type ulidGenerator struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

// NewULIDGenerator creates a generator of ULIDs.
func NewULIDGenerator() Generator {
	return &ulidGenerator{entropy: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))}
}

func (g *ulidGenerator) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(g.entropy.Uint32())
	}

	return len(p), nil
}

func (g *ulidGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Now(), g)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (g *ulidGenerator) IsValid(flowId string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(flowId))
	return err == nil
}
