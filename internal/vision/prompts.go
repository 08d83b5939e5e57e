package vision

import (
	"fmt"

	"github.com/localnerve/eagleview/internal/models"
)

const pillboxPrompt = `You are helping a senior with low vision check their weekly pill organizer.
Look at every compartment in the photo and report whether it is FULL, EMPTY or PARTIAL.
Respond with JSON only, in this shape:
{"summary": "one or two short sentences", "compartments": [{"name": "Mon AM", "status": "FULL", "description": "two white round pills"}]}`

const pillboxSchedulePrompt = pillboxPrompt + `
The senior's medication schedule is:
%s
Compare the compartments against this schedule and mention anything missing or extra in the summary.`

const finePrintPrompt = `You are helping a senior with low vision read the small print on a medication label or package.
Read the text in the photo and respond with JSON only, in this shape:
{"summary": "plain language explanation", "dosage": "how much and how often", "warnings": "important warnings", "expiry": "expiry date", "fullSnippet": "any other text you can read"}
Leave out fields you cannot read.`

const documentPrompt = `You are helping a senior with low vision understand a letter, bill or notice, and protecting them from scams.
Read the document in the photo and respond with JSON only, in this shape:
{"docType": "bill, letter, notice or other", "summary": "plain language explanation", "sender": "who sent it", "amount": "any amount owed", "dueDate": "any due date", "fraudRisk": "Low", "fraudReasoning": "why"}
fraudRisk must be one of Low, Medium or High. Rate it High for urgent payment demands, gift cards, wire transfers,
threats or requests for passwords and account numbers.`

const askPrompt = `You are helping a senior with low vision. Earlier you analyzed the attached photo (%s) and found:
%s
Answer their follow-up question in two or three short, plain sentences. Do not use JSON or markdown.
Question: %s`

// Prompt returns the instruction for kind. The schedule only applies to PILLBOX.
func Prompt(kind models.AnalysisType, schedule string) string {
	switch kind {
	case models.AnalysisPillbox:
		if schedule != "" {
			return fmt.Sprintf(pillboxSchedulePrompt, schedule)
		}
		return pillboxPrompt
	case models.AnalysisFinePrint:
		return finePrintPrompt
	default:
		return documentPrompt
	}
}
