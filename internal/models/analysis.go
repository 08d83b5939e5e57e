// analysis.go
//
// Analysis result records and their per-type payloads
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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/eagleview/internal/types"
)

// AnalysisType is the kind of capture that was analyzed
type AnalysisType string

const (
	AnalysisPillbox   AnalysisType = "PILLBOX"
	AnalysisFinePrint AnalysisType = "FINE_PRINT"
	AnalysisDocument  AnalysisType = "DOCUMENT"
)

// Valid reports whether t is a known analysis type
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisPillbox, AnalysisFinePrint, AnalysisDocument:
		return true
	}
	return false
}

// FraudRisk is the document fraud assessment
type FraudRisk string

const (
	FraudLow    FraudRisk = "Low"
	FraudMedium FraudRisk = "Medium"
	FraudHigh   FraudRisk = "High"
)

// Valid reports whether r is a known risk level
func (r FraudRisk) Valid() bool {
	return r == FraudLow || r == FraudMedium || r == FraudHigh
}

// ParseFraudRisk matches s against the known levels ignoring case and surrounding space
func ParseFraudRisk(s string) (FraudRisk, bool) {
	s = strings.TrimSpace(s)
	for _, level := range []FraudRisk{FraudLow, FraudMedium, FraudHigh} {
		if strings.EqualFold(s, string(level)) {
			return level, true
		}
	}
	return FraudRisk(s), false
}

// UnmarshalJSON canonicalizes a known level written in any case; unknown text is kept as is
func (r *FraudRisk) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r, _ = ParseFraudRisk(s)
	return nil
}

// DefaultSummary is used when the model returns no summary
const DefaultSummary = "I've analyzed the image."

// AnalysisResult is one immutable record per completed scan.
// UserID is the senior the scan is for; PerformedBy is the account that captured it.
type AnalysisResult struct {
	ID          string       `gorm:"primaryKey;size:64" json:"id"`
	UserID      string       `gorm:"size:64;not null;index:idx_history_user_ts,priority:1" json:"userId"`
	PerformedBy string       `gorm:"size:64;not null" json:"performedBy"`
	Timestamp   int64        `gorm:"not null;index:idx_history_user_ts,priority:2,sort:desc" json:"timestamp"`
	Type        AnalysisType `gorm:"size:16;not null" json:"type"`
	ImageURL    LongText     `json:"imageUrl"`
	Summary     string       `gorm:"type:text" json:"summary"`
	Details     JSON         `json:"details"`
	FraudRisk   *FraudRisk   `gorm:"size:8" json:"fraudRisk,omitempty"`
	CreatedAt   time.Time    `json:"-"`
}

// TableName overrides the table name for AnalysisResult
func (AnalysisResult) TableName() string {
	return "history"
}

// Compartment is one pill organizer slot
type Compartment struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// PillboxDetails is the PILLBOX payload
type PillboxDetails struct {
	Summary      string                       `json:"summary"`
	Compartments types.FlexList[Compartment] `json:"compartments"`
}

// FinePrintDetails is the FINE_PRINT payload
type FinePrintDetails struct {
	Summary     string           `json:"summary"`
	Dosage      types.FlexString `json:"dosage,omitempty"`
	Warnings    types.FlexString `json:"warnings,omitempty"`
	Expiry      types.FlexString `json:"expiry,omitempty"`
	FullSnippet types.FlexString `json:"fullSnippet,omitempty"`
}

// DocumentDetails is the DOCUMENT payload
type DocumentDetails struct {
	DocType        string           `json:"docType"`
	Summary        string           `json:"summary"`
	Sender         types.FlexString `json:"sender,omitempty"`
	Amount         types.FlexString `json:"amount,omitempty"`
	DueDate        types.FlexString `json:"dueDate,omitempty"`
	FraudRisk      FraudRisk        `json:"fraudRisk"`
	FraudReasoning types.FlexString `json:"fraudReasoning,omitempty"`
}

// ResultInput carries everything needed to build an AnalysisResult
type ResultInput struct {
	ID          string
	TargetID    string
	PerformedBy string
	Timestamp   int64
	Type        AnalysisType
	ImageURL    string
	Details     json.RawMessage
}

// NewAnalysisResult builds a result from a model payload. FraudRisk is only set when the
// payload carries a valid level, so absent risk is never written as null.
func NewAnalysisResult(in ResultInput) (AnalysisResult, error) {
	if !in.Type.Valid() {
		return AnalysisResult{}, fmt.Errorf("invalid analysis type %q", in.Type)
	}
	if len(in.Details) == 0 {
		in.Details = json.RawMessage("{}")
	}

	var head struct {
		Summary   string    `json:"summary"`
		FraudRisk FraudRisk `json:"fraudRisk"`
	}
	if err := json.Unmarshal(in.Details, &head); err != nil {
		return AnalysisResult{}, fmt.Errorf("invalid analysis details: %w", err)
	}

	result := AnalysisResult{
		ID:          in.ID,
		UserID:      in.TargetID,
		PerformedBy: in.PerformedBy,
		Timestamp:   in.Timestamp,
		Type:        in.Type,
		ImageURL:    LongText(in.ImageURL),
		Summary:     head.Summary,
		Details:     NewJSON(in.Details),
	}
	if result.Summary == "" {
		result.Summary = DefaultSummary
	}
	if in.Type == AnalysisDocument && head.FraudRisk.Valid() {
		risk := head.FraudRisk
		result.FraudRisk = &risk
	}

	return result, nil
}

// Pillbox decodes the PILLBOX details
func (r AnalysisResult) Pillbox() (PillboxDetails, error) {
	var d PillboxDetails
	err := r.decode(AnalysisPillbox, &d)
	return d, err
}

// FinePrint decodes the FINE_PRINT details
func (r AnalysisResult) FinePrint() (FinePrintDetails, error) {
	var d FinePrintDetails
	err := r.decode(AnalysisFinePrint, &d)
	return d, err
}

// Document decodes the DOCUMENT details
func (r AnalysisResult) Document() (DocumentDetails, error) {
	var d DocumentDetails
	err := r.decode(AnalysisDocument, &d)
	return d, err
}

func (r AnalysisResult) decode(want AnalysisType, v interface{}) error {
	if r.Type != want {
		return fmt.Errorf("result %s is %s, not %s", r.ID, r.Type, want)
	}
	return r.Details.Decode(v)
}

// Risk returns the fraud risk or "" when absent
func (r AnalysisResult) Risk() FraudRisk {
	if r.FraudRisk == nil {
		return ""
	}
	return *r.FraudRisk
}
