package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"liquidityOracle/internal/model"
)

// StreamPublisher writes each snapshot as one JSON line.
type StreamPublisher struct {
	w  io.Writer
	mu sync.Mutex
}

func NewStreamPublisher(w io.Writer) *StreamPublisher {
	return &StreamPublisher{w: w}
}

// Publish appends the snapshot as a JSON line.
func (s *StreamPublisher) Publish(ctx context.Context, snapshot *model.PriceSnapshot) error {
	if snapshot == nil {
		return nil
	}
	line, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writer := bufio.NewWriter(s.w)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
