// Package clock provides the current_time capability.
package clock

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rhuss/toolloop/pkg/tools"
)

// ToolName is the capability name advertised to the model.
const ToolName = "current_time"

// Set is the capability set providing current_time.
type Set struct {
	now func() time.Time
}

var _ tools.Set = (*Set)(nil)

// New creates the clock set.
func New() *Set {
	return &Set{now: time.Now}
}

// Name returns "clock".
func (s *Set) Name() string { return "clock" }

// Capabilities returns the current_time capability.
func (s *Set) Capabilities() []tools.Capability {
	return []tools.Capability{{
		Descriptor: tools.Descriptor{
			Name:        ToolName,
			Description: "Returns the current date and time in an IANA time zone",
			Parameters: []tools.Parameter{
				{Name: "timezone", Type: tools.TypeString, Description: "IANA time zone such as Asia/Shanghai. Defaults to UTC."},
			},
		},
		Handler: s.currentTime,
	}}
}

func (s *Set) currentTime(_ context.Context, args map[string]any) (string, error) {
	name, _ := args["timezone"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return "", fmt.Errorf("unknown time zone %q", name)
	}
	return s.now().In(loc).Format(time.RFC3339) + " (" + name + ")", nil
}
