package zendesk

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// selectedFields maps the custom field IDs the priority analyzer cares
// about to fallback display names used when no CSV export is available.
var selectedFields = map[int64]string{
	40860554056601: "Platform",
	49138745436441: "Customer Name",
	9774746026137:  "Monthly Plan Tier",
	50198956158617: "Deal Value (in ARR)",
	53579979659417: "Impact to Hevo - Retention value",
	53579969564697: "Impact to Hevo - Upsell potential",
	47366530736921: "Fivetran parity",
	49138927053465: "Urgency",
	47498314998041: "Workaround available",
	49139242724633: "Request Category",
	47601744118553: "New Destination",
	47601699917081: "New Source",
	49277175956377: "Feature Request Title",
	49276047881369: "Relevant Details",
}

// FieldMapper resolves ticket custom field IDs to display names.
type FieldMapper struct {
	names map[int64]string
}

// NewFieldMapper builds a mapper from a Zendesk ticket-fields CSV export
// (columns "Field ID" and "Display name"). A missing or unreadable file
// falls back to the built-in names so the analyzer keeps working.
func NewFieldMapper(csvPath string) *FieldMapper {
	names := make(map[int64]string, len(selectedFields))
	for id, name := range selectedFields {
		names[id] = name
	}
	if csvPath != "" {
		loadFieldCSV(csvPath, names)
	}
	return &FieldMapper{names: names}
}

func loadFieldCSV(path string, names map[int64]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil || len(rows) == 0 {
		return
	}

	idCol, nameCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case "Field ID":
			idCol = i
		case "Display name":
			nameCol = i
		}
	}
	if idCol < 0 || nameCol < 0 {
		return
	}

	for _, row := range rows[1:] {
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[idCol]), 10, 64)
		if err != nil {
			continue
		}
		if _, selected := selectedFields[id]; !selected {
			continue
		}
		if name := strings.TrimSpace(row[nameCol]); name != "" {
			names[id] = name
		}
	}
}

// Map converts a ticket's custom_fields array into display-name keyed
// values, dropping unselected fields and empty values.
func (m *FieldMapper) Map(fields []CustomField) map[string]string {
	out := make(map[string]string)
	for _, f := range fields {
		name, ok := m.names[f.ID]
		if !ok {
			continue
		}
		val := fieldValueString(f.Value)
		if val == "" {
			continue
		}
		out[name] = val
	}
	return out
}

// FormatFieldsForPrompt renders mapped fields as a metadata block for
// inclusion in an analysis prompt. Values are capped at 200 characters.
func FormatFieldsForPrompt(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("TICKET METADATA:\n")
	for _, name := range names {
		b.WriteString(fmt.Sprintf("%s: %s\n", name, truncate(fields[name], 200)))
	}
	return b.String()
}

func fieldValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
