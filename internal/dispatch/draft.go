package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"water-dispatch-backend/internal/parse"
	"water-dispatch-backend/internal/requestsvc"
)

// Urgency is the urgency a user picks on the manual request form.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

var urgencyPriority = map[Urgency]requestsvc.Priority{
	UrgencyHigh:   requestsvc.PriorityHigh,
	UrgencyMedium: requestsvc.PriorityMedium,
	UrgencyLow:    requestsvc.PriorityLow,
}

// Priority maps the urgency to a request priority.
func (u Urgency) Priority() (requestsvc.Priority, bool) {
	p, ok := urgencyPriority[Urgency(strings.ToLower(strings.TrimSpace(string(u))))]
	return p, ok
}

// EmergencyRequestDraft is the fixed-shape manual request form.
type EmergencyRequestDraft struct {
	Location    string  `json:"location"`
	Description string  `json:"description"`
	WaterLevel  string  `json:"waterLevel"`
	Urgency     Urgency `json:"urgency"`
}

// ValidationError lists the draft fields that blocked submission.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return "invalid emergency request: " + strings.Join(parts, ", ")
}

// validatedDraft is a draft that passed validation.
type validatedDraft struct {
	location    string
	description string
	level       int
	priority    requestsvc.Priority
}

// validate checks every required field and returns the normalized draft.
func (d EmergencyRequestDraft) validate() (validatedDraft, error) {
	fields := map[string]string{}
	out := validatedDraft{
		location:    strings.TrimSpace(d.Location),
		description: strings.TrimSpace(d.Description),
	}

	if out.location == "" {
		fields["location"] = "is required"
	}
	if out.description == "" {
		fields["description"] = "is required"
	}

	if strings.TrimSpace(d.WaterLevel) == "" {
		fields["waterLevel"] = "is required"
	} else if level, err := parse.ParseLevel(d.WaterLevel); err != nil {
		fields["waterLevel"] = "must be a percentage"
	} else if level < 0 || level > 100 {
		fields["waterLevel"] = "must be between 0 and 100"
	} else {
		out.level = level
	}

	if strings.TrimSpace(string(d.Urgency)) == "" {
		fields["urgency"] = "is required"
	} else if p, ok := d.Urgency.Priority(); !ok {
		fields["urgency"] = "must be one of high, medium, low"
	} else {
		out.priority = p
	}

	if len(fields) > 0 {
		return validatedDraft{}, &ValidationError{Fields: fields}
	}
	return out, nil
}
