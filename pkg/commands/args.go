package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/korjavin/eventbot/pkg/events"
)

var errUsage = errors.New("wrong arguments")

// splitArgs splits ";"-separated arguments and trims each one
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

type createArgs struct {
	name, location string
	start, end     string
}

// parseCreateArgs reads "name; location; start date; start time; end date; end time"
func parseCreateArgs(s string) (createArgs, error) {
	parts := splitArgs(s)
	if len(parts) != 6 {
		return createArgs{}, fmt.Errorf("%w: expected 6 values separated by ';', got %d", errUsage, len(parts))
	}
	return createArgs{
		name:     parts[0],
		location: parts[1],
		start:    parts[2] + " " + parts[3],
		end:      parts[4] + " " + parts[5],
	}, nil
}

func parseEventID(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not an event number", errUsage, s)
	}
	return id, nil
}

// parseModifyArgs reads "id key=value; key=value ...". Keys are name, location,
// datestart, timestart, dateend and timeend.
func parseModifyArgs(s string) (int64, events.Changes, error) {
	var changes events.Changes
	s = strings.TrimSpace(s)
	idPart, rest, _ := strings.Cut(s, " ")
	id, err := parseEventID(idPart)
	if err != nil {
		return 0, changes, err
	}

	for _, pair := range splitArgs(rest) {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return 0, changes, fmt.Errorf("%w: %q is not key=value", errUsage, pair)
		}
		value = strings.TrimSpace(value)
		v := &value
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			changes.Name = v
		case "location":
			changes.Location = v
		case "datestart":
			changes.StartDate = v
		case "timestart":
			changes.StartTime = v
		case "dateend":
			changes.EndDate = v
		case "timeend":
			changes.EndTime = v
		default:
			return 0, changes, fmt.Errorf("%w: unknown field %q", errUsage, key)
		}
	}
	return id, changes, nil
}

// parsePage returns the requested page number, 1 when absent or invalid
func parsePage(s string) int {
	page, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
