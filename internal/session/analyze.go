// analyze.go
//
// Analyze, ask and persist for the active target
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

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/metrics"
	"github.com/localnerve/eagleview/internal/models"
)

var (
	// ErrNoVision is returned when the core was built without a vision client
	ErrNoVision = errors.New("image analysis is not configured")
	// ErrBusy is returned while another analysis for this session is running
	ErrBusy = errors.New("an analysis is already in progress")
)

// Analyze sends image for the active target to the vision model and records the result.
// PILLBOX requests carry the target's medication schedule.
func (c *Core) Analyze(ctx context.Context, image string, kind models.AnalysisType) (models.AnalysisResult, error) {
	if !kind.Valid() {
		return models.AnalysisResult{}, fmt.Errorf("invalid analysis type %q", kind)
	}
	if c.vision == nil {
		return models.AnalysisResult{}, ErrNoVision
	}
	if !c.analyzing.CompareAndSwap(false, true) {
		return models.AnalysisResult{}, ErrBusy
	}
	defer c.analyzing.Store(false)

	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return models.AnalysisResult{}, ErrNotSignedIn
	}
	performedBy := c.user.ID
	targetID := c.targetID
	schedule := c.prefs.MedicationSchedule
	c.mu.Unlock()

	if targetID == "" {
		return models.AnalysisResult{}, ErrNoTarget
	}
	if kind != models.AnalysisPillbox {
		schedule = ""
	}

	details, err := c.vision.Analyze(ctx, image, kind, schedule)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result, err := models.NewAnalysisResult(models.ResultInput{
		ID:          uuid.NewString(),
		TargetID:    targetID,
		PerformedBy: performedBy,
		Timestamp:   c.opts.Now().UnixMilli(),
		Type:        kind,
		ImageURL:    image,
		Details:     details,
	})
	if err != nil {
		return models.AnalysisResult{}, err
	}

	if err := c.RecordAnalysis(result); err != nil {
		return models.AnalysisResult{}, err
	}
	metrics.Analyses.WithLabelValues(string(kind)).Inc()
	return result, nil
}

// Ask answers a follow-up question about a recorded analysis
func (c *Core) Ask(ctx context.Context, resultID, question string) (string, error) {
	if c.vision == nil {
		return "", ErrNoVision
	}
	result, err := c.HistoryItem(ctx, resultID)
	if err != nil {
		return "", err
	}
	return c.vision.Ask(ctx, result, question)
}

// HistoryItem finds a result for the active target, locally first and then in the store
func (c *Core) HistoryItem(ctx context.Context, id string) (models.AnalysisResult, error) {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return models.AnalysisResult{}, ErrNotSignedIn
	}
	targetID := c.targetID
	for _, r := range c.history {
		if r.ID == id {
			c.mu.Unlock()
			return r, nil
		}
	}
	c.mu.Unlock()

	if targetID == "" {
		return models.AnalysisResult{}, ErrNoTarget
	}

	result, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	if result.UserID != targetID {
		return models.AnalysisResult{}, gateway.ErrNotFound
	}
	return result, nil
}
