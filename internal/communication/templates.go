package communication

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	TemplateReminder3Days = "subscription_reminder_3days_2v"
	TemplateSuspended     = "subscription_suspended_notice_2v"
	TemplateCutoffDay     = "subscription_cutoff_day_2v"
)

// Template is a pre-approved WhatsApp content template. Variables are
// positional: the first one fills {{1}}, the second {{2}}, and so on.
type Template struct {
	Name       string
	ContentSID string
	Variables  []string
}

var templates = map[string]Template{
	TemplateReminder3Days: {
		Name:       TemplateReminder3Days,
		ContentSID: "HXfcc8ae438db9df662a0e1f7d801e946b",
		Variables:  []string{"name", "dueDate"},
	},
	TemplateSuspended: {
		Name:       TemplateSuspended,
		ContentSID: "HX9954143348c57d5cfb1daf4b5ab8ee6b",
		Variables:  []string{"name", "subscriptionLabel"},
	},
	TemplateCutoffDay: {
		Name:       TemplateCutoffDay,
		ContentSID: "HX416f989f4eb0c55836464269165eece0",
		Variables:  []string{"name", "subscriptionLabel", "cutoffDate"},
	},
}

func LookupTemplate(name string) (Template, bool) {
	t, ok := templates[name]
	return t, ok
}

func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the declared variables that are absent or blank in data.
func (t Template) Missing(data map[string]string) []string {
	var missing []string
	for _, key := range t.Variables {
		if strings.TrimSpace(data[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Render produces the positional content variables the gateway expects.
func (t Template) Render(data map[string]string) (map[string]string, error) {
	if missing := t.Missing(data); len(missing) > 0 {
		return nil, fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	out := make(map[string]string, len(t.Variables))
	for i, key := range t.Variables {
		out[strconv.Itoa(i+1)] = data[key]
	}
	return out, nil
}
