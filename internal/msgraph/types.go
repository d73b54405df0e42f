package msgraph

import (
	"fmt"
	"time"
)

// graphTimeLayout is the fractional-second layout Graph uses for event
// times. The value carries no zone; the timeZone field supplies it.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// DateTimeZone is Graph's dateTimeTimeZone resource.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Time resolves the value to a time.Time in the declared zone.
func (d DateTimeZone) Time() (time.Time, error) {
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve time zone %q: %w", d.TimeZone, err)
	}
	t, err := time.ParseInLocation(graphTimeLayout, d.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event time %q: %w", d.DateTime, err)
	}
	return t, nil
}

// NewDateTimeZone formats a time for Graph, always in UTC.
func NewDateTimeZone(t time.Time) DateTimeZone {
	return DateTimeZone{
		DateTime: t.UTC().Format(graphTimeLayout),
		TimeZone: "UTC",
	}
}

// Event is a calendar event as returned by the calendar view.
type Event struct {
	ID      string       `json:"id"`
	Subject string       `json:"subject"`
	Start   DateTimeZone `json:"start"`
	End     DateTimeZone `json:"end"`
}

// eventList is the collection envelope for event queries.
type eventList struct {
	Value    []Event `json:"value"`
	NextLink string  `json:"@odata.nextLink"`
}

// ItemBody is Graph's itemBody resource for event and message bodies.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// EmailAddress identifies an attendee.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Attendee is Graph's attendee resource.
type Attendee struct {
	Type         string       `json:"type"`
	EmailAddress EmailAddress `json:"emailAddress"`
}

// EventInput is the payload for creating a calendar event.
type EventInput struct {
	Subject   string       `json:"subject"`
	Body      ItemBody     `json:"body"`
	Start     DateTimeZone `json:"start"`
	End       DateTimeZone `json:"end"`
	Attendees []Attendee   `json:"attendees,omitempty"`
}

// User is the subset of the Graph user resource the assistant needs.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}
