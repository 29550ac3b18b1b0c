package services

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ncnu-assistant/dormmail-backend/models"
)

// The legacy page masks the middle of a recipient name with a fullwidth O
const (
	nameMaskFullwidth = "Ｏ"
	nameMaskASCII     = "O"
)

// PickupWindowDays is how long parcels are held at the dorm counter
const PickupWindowDays = 5

// FilterByDepartment keeps records whose department contains the given fragment.
// "資工" matches "資工系碩1". An empty fragment returns no records.
func FilterByDepartment(records []models.MailRecord, department string) []models.MailRecord {
	department = strings.TrimSpace(department)
	filtered := make([]models.MailRecord, 0)
	if len(records) == 0 || department == "" {
		return filtered
	}

	for _, record := range records {
		if strings.Contains(record.Department, department) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// FilterByName keeps records whose masked recipient matches the given name.
// Accepts the masked form ("武Ｏ星"), a bare surname ("武") or a full name ("武星星").
func FilterByName(records []models.MailRecord, name string) []models.MailRecord {
	name = strings.TrimSpace(name)
	filtered := make([]models.MailRecord, 0)
	if len(records) == 0 || name == "" {
		return filtered
	}

	for _, record := range records {
		if MatchRecipientName(record.Recipient, name) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// MatchRecipientName compares a masked recipient against a user-entered name
func MatchRecipientName(recipient, name string) bool {
	if name == recipient {
		return true
	}

	nameRunes := []rune(name)
	if len(nameRunes) == 1 {
		return strings.HasPrefix(recipient, name)
	}

	if !strings.Contains(name, nameMaskFullwidth) && !strings.Contains(name, nameMaskASCII) {
		switch len(nameRunes) {
		case 3:
			if string(nameRunes[0])+nameMaskFullwidth+string(nameRunes[2]) == recipient {
				return true
			}
		case 4:
			// compound surname first, then two-character given name
			if string(nameRunes[:2])+nameMaskFullwidth+string(nameRunes[3]) == recipient {
				return true
			}
			if string(nameRunes[0])+nameMaskFullwidth+string(nameRunes[2:]) == recipient {
				return true
			}
		}
	}

	recipientBare := stripNameMask(recipient)
	nameBare := stripNameMask(name)
	if len([]rune(nameBare)) >= 2 && len([]rune(recipientBare)) >= 2 {
		return strings.Contains(recipientBare, nameBare) || strings.Contains(nameBare, recipientBare)
	}
	return false
}

func stripNameMask(name string) string {
	name = strings.ReplaceAll(name, nameMaskFullwidth, "")
	return strings.ReplaceAll(name, nameMaskASCII, "")
}

// ListDepartments returns the sorted distinct non-empty departments
func ListDepartments(records []models.MailRecord) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		if department := strings.TrimSpace(record.Department); department != "" {
			seen[department] = struct{}{}
		}
	}

	departments := make([]string, 0, len(seen))
	for department := range seen {
		departments = append(departments, department)
	}
	sort.Strings(departments)
	return departments
}

// RemainingPickupDays converts days_since_arrival ("3.17") into whole days left to collect.
// Unparsable or negative values count as just arrived.
func RemainingPickupDays(daysSinceArrival string) int {
	days, err := strconv.ParseFloat(strings.TrimSpace(daysSinceArrival), 64)
	if err != nil || math.IsNaN(days) || days < 0 {
		days = 0
	}
	if days >= PickupWindowDays {
		return 0
	}

	return PickupWindowDays - int(math.Floor(days))
}

// WithDeadlines decorates records with their remaining pickup days
func WithDeadlines(records []models.MailRecord) []models.MailRecordWithDeadline {
	decorated := make([]models.MailRecordWithDeadline, 0, len(records))
	for _, record := range records {
		decorated = append(decorated, models.MailRecordWithDeadline{
			MailRecord:    record,
			RemainingDays: RemainingPickupDays(record.DaysSinceArrival),
		})
	}
	return decorated
}
