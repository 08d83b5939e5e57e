package models

import (
	"fmt"
	"time"
)

// FontSize is the display text size preference
type FontSize string

const (
	FontNormal FontSize = "normal"
	FontLarge  FontSize = "large"
)

// Preferences is one record per senior-equivalent target, shared between the senior and
// every caregiver who manages them.
type Preferences struct {
	TargetID           string    `gorm:"primaryKey;size:64" json:"-"`
	HighContrast       bool      `gorm:"not null" json:"highContrast"`
	FontSize           FontSize  `gorm:"size:16;not null" json:"fontSize"`
	MedicationSchedule string    `gorm:"type:text" json:"medicationSchedule"`
	CaregiverNote      string    `gorm:"type:text" json:"caregiverNote,omitempty"`
	UpdatedAt          time.Time `json:"-"`
}

// TableName overrides the table name for Preferences
func (Preferences) TableName() string {
	return "preferences"
}

// DefaultPreferences are the local preferences before anything is loaded or stored
func DefaultPreferences(targetID string) Preferences {
	return Preferences{
		TargetID: targetID,
		FontSize: FontNormal,
	}
}

// PreferencesPatch is a partial update. Nil fields are left untouched.
type PreferencesPatch struct {
	HighContrast       *bool     `json:"highContrast,omitempty"`
	FontSize           *FontSize `json:"fontSize,omitempty"`
	MedicationSchedule *string   `json:"medicationSchedule,omitempty"`
	CaregiverNote      *string   `json:"caregiverNote,omitempty"`
}

// PatchOf returns a patch that sets every field of p
func PatchOf(p Preferences) PreferencesPatch {
	fontSize := p.FontSize
	return PreferencesPatch{
		HighContrast:       &p.HighContrast,
		FontSize:           &fontSize,
		MedicationSchedule: &p.MedicationSchedule,
		CaregiverNote:      &p.CaregiverNote,
	}
}

// Empty reports whether the patch changes nothing
func (p PreferencesPatch) Empty() bool {
	return p.HighContrast == nil && p.FontSize == nil && p.MedicationSchedule == nil && p.CaregiverNote == nil
}

// Validate rejects values outside the allowed sets
func (p PreferencesPatch) Validate() error {
	if p.FontSize != nil && *p.FontSize != FontNormal && *p.FontSize != FontLarge {
		return fmt.Errorf("invalid fontSize %q", *p.FontSize)
	}
	return nil
}

// Apply writes the set fields of the patch onto prefs
func (p PreferencesPatch) Apply(prefs *Preferences) {
	if p.HighContrast != nil {
		prefs.HighContrast = *p.HighContrast
	}
	if p.FontSize != nil {
		prefs.FontSize = *p.FontSize
	}
	if p.MedicationSchedule != nil {
		prefs.MedicationSchedule = *p.MedicationSchedule
	}
	if p.CaregiverNote != nil {
		prefs.CaregiverNote = *p.CaregiverNote
	}
}

// Columns lists the database columns the patch sets
func (p PreferencesPatch) Columns() []string {
	var cols []string
	if p.HighContrast != nil {
		cols = append(cols, "high_contrast")
	}
	if p.FontSize != nil {
		cols = append(cols, "font_size")
	}
	if p.MedicationSchedule != nil {
		cols = append(cols, "medication_schedule")
	}
	if p.CaregiverNote != nil {
		cols = append(cols, "caregiver_note")
	}
	return cols
}
