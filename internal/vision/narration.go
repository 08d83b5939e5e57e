package vision

import (
	"fmt"
	"strings"

	"github.com/localnerve/eagleview/internal/models"
)

// Narrate is the text read aloud when a result is shown. Details that fail to decode are
// skipped and only the summary is read.
func Narrate(result models.AnalysisResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Result: %s. ", strings.TrimRight(result.Summary, ". "))

	switch result.Type {
	case models.AnalysisPillbox:
		d, err := result.Pillbox()
		if err != nil || len(d.Compartments) == 0 {
			break
		}
		sb.WriteString("Here is what I see: ")
		for _, c := range d.Compartments {
			fmt.Fprintf(&sb, "%s is %s. ", c.Name, c.Status)
			if c.Description != "" {
				fmt.Fprintf(&sb, "%s. ", strings.TrimRight(c.Description, ". "))
			}
		}

	case models.AnalysisFinePrint:
		d, err := result.FinePrint()
		if err != nil {
			break
		}
		sentence(&sb, "Dosage", string(d.Dosage))
		sentence(&sb, "Warnings", string(d.Warnings))
		sentence(&sb, "Additional text found", string(d.FullSnippet))

	case models.AnalysisDocument:
		d, err := result.Document()
		if err != nil {
			break
		}
		sentence(&sb, "Document type", d.DocType)
		if risk := result.Risk(); risk != "" {
			fmt.Fprintf(&sb, "Fraud risk level is %s. ", risk)
		}
		sentence(&sb, "Reasoning", string(d.FraudReasoning))
	}

	return strings.TrimSpace(sb.String())
}

func sentence(sb *strings.Builder, label, value string) {
	value = strings.TrimRight(strings.TrimSpace(value), ". ")
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s: %s. ", label, value)
}
