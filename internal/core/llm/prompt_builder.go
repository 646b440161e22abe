package llm

import (
	"fmt"
	"strings"
)

// DraftContext is what the drafter knows about the conversation.
type DraftContext struct {
	OrganizationName string
	CustomerName     string
	Tone             string
	Notes            []string // e.g. "last donation 2024-05-01", "blood type O+"
}

// BuildSystemPrompt builds the system prompt for drafting an agent reply.
func BuildSystemPrompt(dc DraftContext) string {
	var sb strings.Builder

	org := dc.OrganizationName
	if org == "" {
		org = "the donation center"
	}
	tone := dc.Tone
	if tone == "" {
		tone = "warm and professional"
	}

	sb.WriteString(fmt.Sprintf("You draft WhatsApp replies for staff at %s.\n", org))
	sb.WriteString(fmt.Sprintf("Tone: %s.\n", tone))
	if dc.CustomerName != "" {
		sb.WriteString(fmt.Sprintf("The donor's name is %s.\n", dc.CustomerName))
	}

	if len(dc.Notes) > 0 {
		sb.WriteString("\n=== DONOR NOTES ===\n")
		for _, n := range dc.Notes {
			sb.WriteString(fmt.Sprintf("- %s\n", n))
		}
	}

	sb.WriteString("\nInstructions:\n")
	sb.WriteString("- Reply in the donor's language\n")
	sb.WriteString("- Keep it short, one or two sentences\n")
	sb.WriteString("- Do not invent appointment times or medical facts\n")
	sb.WriteString("- Output only the reply text\n")

	return sb.String()
}
