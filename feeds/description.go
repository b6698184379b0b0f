package feeds

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"foerderbande/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultCurrency = "EUR"

var amountPrinter = message.NewPrinter(language.English)

// EnhancedDescription renders the HTML description of a funding call item,
// followed by the details found in its metadata.
func EnhancedDescription(call models.FundingCall) string {
	var b strings.Builder

	if call.Description != nil && *call.Description != "" {
		b.WriteString(*call.Description)
		b.WriteString("<br/><br/>")
	}

	b.WriteString("<strong>Details:</strong><br/>")

	extra := call.ExtraData
	if deadline, ok := extra["deadline"]; ok {
		b.WriteString(fmt.Sprintf("📅 <strong>Frist:</strong> %s<br/>", formatDeadline(deadline)))
	} else if call.Deadline != nil {
		b.WriteString(fmt.Sprintf("📅 <strong>Frist:</strong> %s<br/>", call.Deadline.Format("02.01.2006")))
	}

	minAmount, maxAmount := extra["min_amount"], extra["max_amount"]
	currency := defaultCurrency
	if c, ok := extra["currency"].(string); ok && c != "" {
		currency = c
	}
	switch {
	case truthy(minAmount) && truthy(maxAmount):
		b.WriteString(fmt.Sprintf("💰 <strong>Fördersumme:</strong> %s - %s %s<br/>",
			formatAmount(minAmount), formatAmount(maxAmount), currency))
	case truthy(maxAmount):
		b.WriteString(fmt.Sprintf("💰 <strong>Fördersumme:</strong> bis %s %s<br/>",
			formatAmount(maxAmount), currency))
	}

	if groups := stringList(extra["target_groups"]); len(groups) > 0 {
		b.WriteString(fmt.Sprintf("🎯 <strong>Zielgruppen:</strong> %s<br/>", strings.Join(groups, ", ")))
	}

	if email, ok := extra["contact_email"].(string); ok && email != "" {
		b.WriteString(fmt.Sprintf("📧 <strong>Kontakt:</strong> %s<br/>", email))
	}

	b.WriteString(fmt.Sprintf("<br/>🔗 <strong>Quelle:</strong> %s", call.Source))

	return b.String()
}

// formatDeadline renders a parsable deadline as DD.MM.YYYY and anything else verbatim
func formatDeadline(v any) string {
	raw := fmt.Sprint(v)
	if s, ok := v.(string); ok {
		raw = s
		if t, ok := models.ParseDeadline(s); ok {
			return t.Format("02.01.2006")
		}
	}
	return raw
}

// formatAmount groups thousands with commas, whole numbers without decimals
func formatAmount(v any) string {
	switch n := v.(type) {
	case int:
		return amountPrinter.Sprintf("%d", n)
	case int64:
		return amountPrinter.Sprintf("%d", n)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return amountPrinter.Sprintf("%d", int64(n))
		}
		return amountPrinter.Sprintf("%.2f", n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return formatAmount(f)
		}
		return n
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if x != "" {
			return []string{x}
		}
	}
	return nil
}
