// Package simulate generates synthetic runs with known relevance layouts.
package simulate

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// Layout says where the relevant documents sit in each generated ranking.
type Layout string

const (
	LayoutIdeal    Layout = "ideal"    // relevant documents at the top
	LayoutReversed Layout = "reversed" // relevant documents at the bottom
	LayoutRandom   Layout = "random"
)

// Config describes a synthetic run.
type Config struct {
	Topics   int
	Length   int // documents per topic
	Relevant int // relevant documents per topic
	Layout   Layout
	Seed     uint64 // 0 picks one at random
}

// Validate checks the config.
func (c Config) Validate() error {
	var problems []string
	if c.Topics < 1 {
		problems = append(problems, "topics must be positive")
	}
	if c.Length < 1 {
		problems = append(problems, "length must be positive")
	}
	if c.Relevant < 0 || c.Relevant > c.Length {
		problems = append(problems, fmt.Sprintf("relevant must be between 0 and length (%d)", c.Length))
	}
	switch c.Layout {
	case LayoutIdeal, LayoutReversed, LayoutRandom:
	default:
		problems = append(problems, fmt.Sprintf("unknown layout: %s", c.Layout))
	}
	return errors.JoinProblems(problems)
}

// Generate builds a run and its judgments. Topic ids are "1".."Topics"; document ids are
// random hex UUIDs, unique within the run. Every document is judged, relevant ones with
// grade 1.
func Generate(cfg Config) (trec.Run, trec.Qrels, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	rng := rand.New(src)

	run := make(trec.Run, cfg.Topics)
	qrels := make(trec.Qrels, cfg.Topics)
	seen := make(map[string]struct{}, cfg.Topics*cfg.Length)

	for t := 1; t <= cfg.Topics; t++ {
		topic := strconv.Itoa(t)
		relevant := relevantPositions(rng, cfg)

		docs := make(map[string]float64, cfg.Length)
		judged := make(map[string]int, cfg.Length)
		for i := 0; i < cfg.Length; i++ {
			id, err := docID(src, seen)
			if err != nil {
				return nil, nil, err
			}
			docs[id] = float64(cfg.Length-i) / float64(cfg.Length)
			judged[id] = 0
			if relevant[i] {
				judged[id] = 1
			}
		}
		run[topic] = docs
		qrels[topic] = judged
	}

	return run, qrels, nil
}

func relevantPositions(rng *rand.Rand, cfg Config) map[int]bool {
	positions := make(map[int]bool, cfg.Relevant)
	switch cfg.Layout {
	case LayoutIdeal:
		for i := 0; i < cfg.Relevant; i++ {
			positions[i] = true
		}
	case LayoutReversed:
		for i := cfg.Length - cfg.Relevant; i < cfg.Length; i++ {
			positions[i] = true
		}
	case LayoutRandom:
		for _, i := range rng.Perm(cfg.Length)[:cfg.Relevant] {
			positions[i] = true
		}
	}
	return positions
}

func docID(src *rand.ChaCha8, seen map[string]struct{}) (string, error) {
	for {
		u, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return "", errors.InternalError("generate document id", err)
		}
		id := hex.EncodeToString(u[:])
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			return id, nil
		}
	}
}
