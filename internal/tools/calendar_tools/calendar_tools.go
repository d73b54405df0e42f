// Package calendar_tools registers the MCP tools for reading the user's
// Microsoft 365 calendar and scheduling meetings into free slots.
package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claudia-labs/claudia/internal/availability"
	"github.com/claudia-labs/claudia/internal/msgraph"
	"github.com/claudia-labs/claudia/internal/server"
	"github.com/claudia-labs/claudia/internal/tools/common"
)

const (
	dateLayout             = "2006-01-02"
	defaultDurationMinutes = 30
)

// RegisterCalendarTools registers the calendar tools with the MCP server.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	viewTool := mcp.NewTool("calendar_view",
		mcp.WithDescription("List the user's calendar events for a day"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("Chat user identifier of the connected account"),
		),
		mcp.WithString("date",
			mcp.Description("Day to list, YYYY-MM-DD (default: today, UTC)"),
		),
	)
	s.AddTool(viewTool, common.InstrumentedToolHandler("calendar_view", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCalendarView(ctx, request, sc)
		}))

	findSlotTool := mcp.NewTool("calendar_find_free_slot",
		mcp.WithDescription("Find the earliest free slot of a given length in the user's working day"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("Chat user identifier of the connected account"),
		),
		mcp.WithString("date",
			mcp.Description("Day to search, YYYY-MM-DD (default: today, UTC)"),
		),
		mcp.WithString("earliest",
			mcp.Description("Earliest acceptable start, HH:MM UTC (default: 08:00)"),
		),
		mcp.WithNumber("durationMinutes",
			mcp.Description("Meeting duration in minutes (default: 30)"),
		),
	)
	s.AddTool(findSlotTool, common.InstrumentedToolHandler("calendar_find_free_slot", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindFreeSlot(ctx, request, sc)
		}))

	createTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a calendar event at an explicit time"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("Chat user identifier of the connected account"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Event subject"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339, e.g. '2025-06-02T10:00:00Z')"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339)"),
		),
		mcp.WithString("body",
			mcp.Description("Event body, HTML allowed"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated attendee email addresses"),
		),
	)
	s.AddTool(createTool, common.InstrumentedToolHandler("calendar_create_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	scheduleTool := mcp.NewTool("calendar_schedule",
		mcp.WithDescription("Book a meeting into the earliest free slot of the user's working day"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("Chat user identifier of the connected account"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Event subject"),
		),
		mcp.WithString("date",
			mcp.Description("Day to schedule on, YYYY-MM-DD (default: today, UTC)"),
		),
		mcp.WithString("earliest",
			mcp.Description("Earliest acceptable start, HH:MM UTC (default: 08:00)"),
		),
		mcp.WithNumber("durationMinutes",
			mcp.Description("Meeting duration in minutes (default: 30)"),
		),
		mcp.WithString("body",
			mcp.Description("Event body, HTML allowed"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated attendee email addresses"),
		),
	)
	s.AddTool(scheduleTool, common.InstrumentedToolHandler("calendar_schedule", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSchedule(ctx, request, sc)
		}))

	return nil
}

func handleCalendarView(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	user, err := common.GetUserFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	window, err := dayWindowFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := common.TokenForUser(ctx, sc, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dayStart := window.Start.Truncate(24 * time.Hour)
	events, err := sc.Graph().CalendarView(ctx, token, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read calendar: %v", err)), nil
	}

	if len(events) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No events on %s.", dayStart.Format(dateLayout))), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s) on %s:\n", len(events), dayStart.Format(dateLayout))
	for _, ev := range events {
		start, err := ev.Start.Time()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read calendar: %v", err)), nil
		}
		end, err := ev.End.Time()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read calendar: %v", err)), nil
		}
		fmt.Fprintf(&b, "- %s to %s: %s\n", start.Format("15:04"), end.Format("15:04"), ev.Subject)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleFindFreeSlot(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	user, err := common.GetUserFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	window, err := dayWindowFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	duration, err := durationFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := common.TokenForUser(ctx, sc, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slot, ok, err := findSlot(ctx, sc, token, window, duration)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No free %d-minute slot between %s and %s.",
			int(duration.Minutes()), window.Start.Format("15:04"), window.End.Format("15:04"))), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Earliest free slot: %s to %s (UTC).",
		slot.Start.Format("2006-01-02 15:04"), slot.End.Format("15:04"))), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	user, err := common.GetUserFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	subject, ok := args["subject"].(string)
	if !ok || subject == "" {
		return mcp.NewToolResultError("subject is required"), nil
	}

	start, err := timeArg(args, "start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := timeArg(args, "end")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !start.Before(end) {
		return mcp.NewToolResultError("start must be before end"), nil
	}

	token, err := common.TokenForUser(ctx, sc, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := createEvent(ctx, sc, token, subject, start, end, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Created %q from %s to %s (UTC). Event ID: %s",
		subject, start.UTC().Format("2006-01-02 15:04"), end.UTC().Format("15:04"), created.ID)), nil
}

func handleSchedule(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	user, err := common.GetUserFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, ok := args["subject"].(string)
	if !ok || subject == "" {
		return mcp.NewToolResultError("subject is required"), nil
	}
	window, err := dayWindowFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	duration, err := durationFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := common.TokenForUser(ctx, sc, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slot, ok, err := findSlot(ctx, sc, token, window, duration)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No free %d-minute slot on %s. Nothing was booked.",
			int(duration.Minutes()), window.Start.Format(dateLayout))), nil
	}

	created, err := createEvent(ctx, sc, token, subject, slot.Start, slot.End, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Booked %q from %s to %s (UTC). Event ID: %s",
		subject, slot.Start.Format("2006-01-02 15:04"), slot.End.Format("15:04"), created.ID)), nil
}

// findSlot fetches the day's busy intervals and runs the availability scan.
func findSlot(ctx context.Context, sc *server.ServerContext, token string, window availability.Window, duration time.Duration) (availability.Slot, bool, error) {
	busy, err := sc.Graph().BusyIntervals(ctx, token, window.Start, window.End)
	if err != nil {
		return availability.Slot{}, false, fmt.Errorf("Failed to read calendar: %v", err)
	}
	return availability.FirstFreeSlot(busy, window, duration)
}

func createEvent(ctx context.Context, sc *server.ServerContext, token, subject string, start, end time.Time, args map[string]any) (*msgraph.Event, error) {
	body, _ := args["body"].(string)

	input := msgraph.EventInput{
		Subject:   subject,
		Body:      msgraph.ItemBody{ContentType: "HTML", Content: body},
		Start:     msgraph.NewDateTimeZone(start),
		End:       msgraph.NewDateTimeZone(end),
		Attendees: attendeesFromArgs(args),
	}

	created, err := sc.Graph().CreateEvent(ctx, token, input)
	if err != nil {
		return nil, fmt.Errorf("Failed to create event: %v", err)
	}
	return created, nil
}

func attendeesFromArgs(args map[string]any) []msgraph.Attendee {
	raw, _ := args["attendees"].(string)
	if raw == "" {
		return nil
	}

	var attendees []msgraph.Attendee
	for _, addr := range strings.Split(raw, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		attendees = append(attendees, msgraph.Attendee{
			Type:         "required",
			EmailAddress: msgraph.EmailAddress{Address: addr},
		})
	}
	return attendees
}

// dayWindowFromArgs resolves the working-hours window for the requested
// date, defaulting to today in UTC. An "earliest" argument moves the window
// open later in the day.
func dayWindowFromArgs(args map[string]any) (availability.Window, error) {
	day := time.Now().UTC()
	if raw, ok := args["date"].(string); ok && raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return availability.Window{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
		}
		day = parsed
	}

	window := availability.DayWindow(day)
	if raw, ok := args["earliest"].(string); ok && raw != "" {
		clock, err := time.Parse("15:04", raw)
		if err != nil {
			return availability.Window{}, fmt.Errorf("invalid earliest %q, expected HH:MM", raw)
		}
		offset := time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute
		window = availability.DayWindowFrom(day, offset)
		if !window.Start.Before(window.End) {
			return availability.Window{}, fmt.Errorf("earliest %s is not before the end of the working day", raw)
		}
	}
	return window, nil
}

func durationFromArgs(args map[string]any) (time.Duration, error) {
	minutes := float64(defaultDurationMinutes)
	if raw, ok := args["durationMinutes"].(float64); ok {
		minutes = raw
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("durationMinutes must be positive")
	}
	return time.Duration(minutes) * time.Minute, nil
}

func timeArg(args map[string]any, key string) (time.Time, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format: %v", key, err)
	}
	return t, nil
}
