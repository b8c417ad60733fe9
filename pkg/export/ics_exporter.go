package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one timed entry of a calendar feed.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// ICSExporter renders events as an iCalendar (RFC 5545) document.
type ICSExporter struct {
	ProductID string
	now       func() time.Time
}

// NewICSExporter builds an ICS exporter with the given PRODID.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//examslot//exam schedule//EN"
	}
	return &ICSExporter{ProductID: productID, now: time.Now}
}

// Render produces a published VCALENDAR with one VEVENT per event.
func (e *ICSExporter) Render(name string, events []CalendarEvent) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.ProductID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}
	stamp := e.now().UTC()
	for _, item := range events {
		if item.UID == "" {
			return nil, fmt.Errorf("calendar event requires a uid")
		}
		if !item.End.After(item.Start) {
			return nil, fmt.Errorf("calendar event %s ends before it starts", item.UID)
		}
		event := cal.AddEvent(item.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(item.Start.UTC())
		event.SetEndAt(item.End.UTC())
		event.SetSummary(item.Summary)
		if item.Location != "" {
			event.SetLocation(item.Location)
		}
		if item.Description != "" {
			event.SetDescription(item.Description)
		}
		event.SetStatus(ics.ObjectStatusConfirmed)
	}
	return []byte(cal.Serialize()), nil
}
