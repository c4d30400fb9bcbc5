package structuring

import (
	"fmt"
	"strings"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/pkg/formatting"
)

const systemPrompt = "You structure mammography reports into a fixed set of clinical fields and answer with a single JSON object."

// Prompt builds the extraction prompt for report text from the field catalogue.
func Prompt(text string) string {
	var b strings.Builder

	b.WriteString("Extract the fields below from the mammography report and return one JSON object ")
	b.WriteString("whose keys are exactly the field names. Values are strings. ")
	fmt.Fprintf(&b, "Use %q for anything the report does not state; do not infer. ", clinical.Unknown)
	b.WriteString("Correct obvious OCR errors but keep medical terminology.\n\nFields:\n")

	for _, f := range clinical.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}

	b.WriteString("\nReport:\n")
	b.WriteString(text)
	b.WriteString("\n\nReturn only the JSON object.")
	return b.String()
}

// decode parses model output into normalized StructuredData. Fields the
// model omitted come back as unknown.
func decode(content string) (clinical.StructuredData, error) {
	data, err := formatting.Parse[clinical.StructuredData](content)
	if err != nil {
		return clinical.StructuredData{}, err
	}
	data.Normalize()
	return data, nil
}
