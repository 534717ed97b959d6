package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

const (
	// MaxDraftSourceChars bounds each item's body in a draft batch prompt
	MaxDraftSourceChars = 2000
	// MaxDecisionSourceChars bounds the approved item's text in a decision prompt
	MaxDecisionSourceChars = 3000
)

// typeHints gives the classifier source-specific guidance keyed by document type
var typeHints = map[models.DocType]string{
	models.DocTypeEmail:         "This is an email. Newsletters, receipts and sign-in alerts are automated; direct questions from people are actionable.",
	models.DocTypeMessage:       "This is a chat message. Messages that are only numbers, emoji or verification codes are noise.",
	models.DocTypeMention:       "This is a social media mention. Generic likes and bot replies are noise; questions or leads are actionable.",
	models.DocTypeFileDrop:      "This is a file dropped into the inbox folder. Invoices, contracts and requests in it are actionable.",
	models.DocTypeBusinessEvent: "This is an accounting or CRM event. Overdue invoices and new leads are actionable; routine postings are informational.",
}

// TypeHint returns the guidance line for a document type, or an empty string
func TypeHint(t models.DocType) string {
	return typeHints[t]
}

// BuildClassificationPrompt asks for a single JSON classification object
func BuildClassificationPrompt(name string, doc *models.Document) string {
	var b strings.Builder
	b.WriteString("Classify the following inbox item.\n")
	b.WriteString("Respond in this exact JSON format (no markdown, no backticks):\n")
	b.WriteString(`{"classification": "noise"|"automated"|"informational"|"actionable", `)
	b.WriteString(`"description": "one-line summary of the item", `)
	b.WriteString(`"recommended_action": "what to do (or 'none')"}`)
	b.WriteString("\n\nClassification guide:\n")
	b.WriteString("- noise: spam, false positives, messages that are just numbers or gibberish\n")
	b.WriteString("- automated: service notifications (password resets, PINs, alerts) needing no human response\n")
	b.WriteString("- informational: real messages that are acknowledgments or FYIs needing no response\n")
	b.WriteString("- actionable: messages requiring a follow-up reply or action\n")
	if hint := TypeHint(doc.Type()); hint != "" {
		b.WriteString("\n")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nItem: %s\n---\n%s\n---", name, string(doc.Render()))
	return b.String()
}

// DraftSource is one Raw item offered to the drafter
type DraftSource struct {
	Name string
	Text string
}

// BuildDraftPrompt asks for one delimited draft block per source
func BuildDraftPrompt(sources []DraftSource, now time.Time) string {
	summaries := make([]string, 0, len(sources))
	for _, src := range sources {
		summaries = append(summaries, fmt.Sprintf("### %s\n%s", src.Name, TruncateRunes(src.Text, MaxDraftSourceChars)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d items from Needs_Action/ that need drafts:\n\n", len(sources))
	b.WriteString(strings.Join(summaries, "\n---\n"))
	b.WriteString("\n\nFor each item, output a draft response in this exact format:\n\n")
	fmt.Fprintf(&b, "%s <filename> %s\n", draftOpen, draftMarker)
	b.WriteString("---\ntype: draft\ntarget: <recipient>\noriginal_file: <original filename>\n")
	fmt.Fprintf(&b, "drafted_at: %s\n---\n\n", now.Format(time.RFC3339))
	b.WriteString("<Your drafted response>\n\n")
	b.WriteString(draftEnd)
	b.WriteString("\n\nDraft professional, concise responses. Do NOT send anything, only draft.")
	return b.String()
}

// BuildDecisionPrompt asks for the action to take on an approved item
func BuildDecisionPrompt(name, content string) string {
	var b strings.Builder
	b.WriteString("Analyze the following approved action and decide what to do.\n")
	b.WriteString("Respond in this exact JSON format (no markdown, no backticks):\n")
	kinds := make([]string, 0, len(models.ActionKinds))
	for _, k := range models.ActionKinds {
		kinds = append(kinds, fmt.Sprintf("%q", string(k)))
	}
	fmt.Fprintf(&b, `{"action": %s, `, strings.Join(kinds, "|"))
	b.WriteString(`"to": "recipient", "subject": "subject", "body": "message body", "message_id": "id if replying", `)
	b.WriteString(`"partner_name": "partner name", "lines": [{"description": "item", "quantity": 1, "price_unit": 100}], `)
	b.WriteString(`"lead_name": "CRM lead name", "stage_name": "stage name", "expected_revenue": 0, `)
	b.WriteString(`"lead_type": "opportunity|lead", "reason": "brief explanation"}`)
	b.WriteString("\n\nIf this is an automated notification that needs no response, use \"no_action\".\n")
	b.WriteString("create_invoice needs partner_name and lines, create_crm_lead needs lead_name and partner_name, ")
	b.WriteString("create_sale_order needs partner_name and lines (with product_name), update_crm_stage needs lead_name and stage_name.\n\n")
	fmt.Fprintf(&b, "Item: %s\n---\n%s\n---", name, TruncateRunes(content, MaxDecisionSourceChars))
	return b.String()
}

// BuildPostPrompt asks for a promotional post grounded in recent activity
func BuildPostPrompt(dashboard, handbook string, activity []string) string {
	sections := []string{
		"## Dashboard\n" + dashboard,
		"## Company Handbook\n" + handbook,
		"## Recent Activity Logs\n" + strings.Join(activity, "\n---\n"),
	}

	var b strings.Builder
	b.WriteString("You are a professional LinkedIn content writer for a small tech business.\n")
	b.WriteString("Based on the following business activity from this week, write a LinkedIn post.\n\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- Professional but conversational tone\n")
	b.WriteString("- Highlight what was accomplished this week\n")
	b.WriteString("- Include a helpful tip relevant to AI automation or small business\n")
	b.WriteString("- End with a call-to-action for potential clients\n")
	b.WriteString("- Include 3-5 relevant hashtags\n")
	b.WriteString("- Keep it under 1300 characters\n")
	b.WriteString("- Output ONLY the post text, no markdown headers or metadata\n\n")
	fmt.Fprintf(&b, "---\n%s\n---", strings.Join(sections, "\n\n---\n\n"))
	return b.String()
}
