package extract

import (
	"strings"

	"nota/internal/core"
)

const promptHead = `You read photographs of shopping receipts.

First decide whether the image is a legible purchase receipt.
If it is blurry, cropped so that items or prices are missing, or not a receipt at all, reply with
exactly {"error": "<short reason>"} and nothing else.

Otherwise reply with STRICT JSON only, no comments and no extra text, in this shape:
{
  "store": "store name as printed",
  "date": "YYYY-MM-DD",
  "items": [
    {"category": "one label from the list below", "name": "item name", "quantity": 1, "unit_price": 0, "line_total": 0}
  ]
}

Rules:
- quantity, unit_price and line_total are whole numbers in rupiah without separators or currency symbols.
- line_total is the amount printed on the item line.
- Leave out subtotal, tax, discount summary, payment and change lines.
- If the date cannot be read, omit the "date" field.
`

// BuildPrompt returns the instruction sent alongside every receipt image.
// An empty category list falls back to core.DefaultCategories.
func BuildPrompt(categories []string) string {
	if len(categories) == 0 {
		categories = core.DefaultCategories
	}
	var b strings.Builder
	b.WriteString(promptHead)
	b.WriteString("\nCategories (use exactly one per item):\n")
	for _, c := range categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteByte('\n')
	}
	b.WriteString("\nReturn only the JSON object.\n")
	return b.String()
}
