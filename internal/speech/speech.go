// speech.go
//
// Single-slot speech output
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package speech is the single-slot speech output service. Starting an utterance cancels the
// one in progress; nothing is ever queued.
package speech

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HandoverWait bounds how long a new utterance waits for the cancelled one to stop
const HandoverWait = 500 * time.Millisecond

// Synthesizer speaks text, returning when it finishes or ctx is cancelled
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// Utterance is the last thing the service was asked to say
type Utterance struct {
	ID        uint64 `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	Cancelled bool   `json:"cancelled"`
}

// Service owns the one speech slot
type Service struct {
	synth Synthesizer
	log   *zap.Logger

	mu      sync.Mutex
	seq     uint64
	current Utterance
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a service over synth
func New(synth Synthesizer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Service{synth: synth, log: log, done: done}
}

// Speak cancels any current utterance and starts text once the cancelled one has
// returned, or after HandoverWait if it does not
func (s *Service) Speak(text string) {
	s.mu.Lock()
	s.cancelLocked()
	previous := s.done
	s.seq++
	id := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.current = Utterance{ID: id, Text: text}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		var err error
		if s.handover(ctx, previous, id) {
			err = s.synth.Say(ctx, text)
		}
		if err != nil && ctx.Err() == nil {
			s.log.Warn("speech failed", zap.Uint64("utterance", id), zap.Error(err))
		}

		s.mu.Lock()
		if s.current.ID == id {
			s.current.Done = true
			s.cancel = nil
		}
		s.mu.Unlock()
	}()
}

// handover waits for the previous utterance and reports whether id should still be spoken
func (s *Service) handover(ctx context.Context, previous <-chan struct{}, id uint64) bool {
	timer := time.NewTimer(HandoverWait)
	defer timer.Stop()

	select {
	case <-previous:
	case <-timer.C:
		s.log.Warn("previous utterance still speaking, starting anyway", zap.Uint64("utterance", id))
	case <-ctx.Done():
	}
	return ctx.Err() == nil
}

// Cancel stops the current utterance, if any
func (s *Service) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

// cancelLocked also marks a finished utterance cancelled so clients doing their own
// synthesis stop reading it
func (s *Service) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.current.ID != 0 {
		s.current.Cancelled = true
		s.current.Done = true
	}
}

// Last returns the most recent utterance
func (s *Service) Last() (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.ID != 0
}

// Wait blocks until the current utterance has finished or been cancelled
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
