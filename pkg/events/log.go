package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// MouseRecord is the persisted form of a MouseSample.
type MouseRecord struct {
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Seq       *int    `json:"seq,omitempty"`
}

// KeyRecord is the persisted form of a KeySample.
type KeyRecord struct {
	Timestamp int64  `json:"timestamp"`
	Key       string `json:"key"`
	Seq       *int   `json:"seq,omitempty"`
}

// Log is the flat session dump written at stop. StartTime is epoch
// milliseconds and is null only for a logger that never began a session.
type Log struct {
	MousePositions []MouseRecord `json:"mousePositions"`
	KeyboardInputs []KeyRecord   `json:"keyboardInputs"`
	StartTime      *int64        `json:"startTime"`
}

// NewLog splits samples into the persisted per-kind lists, tagging each record
// with its position in the interleaved sequence.
func NewLog(samples []Sample) Log {
	log := Log{
		MousePositions: []MouseRecord{},
		KeyboardInputs: []KeyRecord{},
	}
	for i, s := range samples {
		seq := i
		switch v := s.(type) {
		case MouseSample:
			log.MousePositions = append(log.MousePositions, MouseRecord{Timestamp: v.Timestamp, X: v.X, Y: v.Y, Seq: &seq})
		case KeySample:
			log.KeyboardInputs = append(log.KeyboardInputs, KeyRecord{Timestamp: v.Timestamp, Key: v.Key, Seq: &seq})
		}
	}
	return log
}

// Samples rebuilds the interleaved sample sequence. Records carrying seq are
// ordered by it; logs without seq fall back to a stable timestamp merge with
// mouse records first on ties.
func (l Log) Samples() []Sample {
	type entry struct {
		seq    int
		hasSeq bool
		sample Sample
	}
	entries := make([]entry, 0, len(l.MousePositions)+len(l.KeyboardInputs))
	for _, m := range l.MousePositions {
		e := entry{sample: MouseSample{Timestamp: m.Timestamp, X: m.X, Y: m.Y}}
		if m.Seq != nil {
			e.seq, e.hasSeq = *m.Seq, true
		}
		entries = append(entries, e)
	}
	for _, k := range l.KeyboardInputs {
		e := entry{sample: KeySample{Timestamp: k.Timestamp, Key: k.Key}}
		if k.Seq != nil {
			e.seq, e.hasSeq = *k.Seq, true
		}
		entries = append(entries, e)
	}

	useSeq := len(entries) > 0
	for _, e := range entries {
		if !e.hasSeq {
			useSeq = false
			break
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if useSeq {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].sample.Offset() < entries[j].sample.Offset()
	})

	out := make([]Sample, len(entries))
	for i, e := range entries {
		out[i] = e.sample
	}
	return out
}

// Len reports the total number of persisted samples.
func (l Log) Len() int {
	return len(l.MousePositions) + len(l.KeyboardInputs)
}

// WriteLog serialises log to path, replacing any existing file. The parent
// directory must already exist.
func WriteLog(path string, log Log) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("session log path must not be empty")
	}
	if log.MousePositions == nil {
		log.MousePositions = []MouseRecord{}
	}
	if log.KeyboardInputs == nil {
		log.KeyboardInputs = []KeyRecord{}
	}
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal session log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	return nil
}

// Load parses a session log written by WriteLog.
func Load(path string) (Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Log{}, fmt.Errorf("read session log: %w", err)
	}
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return Log{}, fmt.Errorf("decode session log: %w", err)
	}
	if log.MousePositions == nil {
		log.MousePositions = []MouseRecord{}
	}
	if log.KeyboardInputs == nil {
		log.KeyboardInputs = []KeyRecord{}
	}
	return log, nil
}
