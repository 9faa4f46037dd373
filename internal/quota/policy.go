package quota

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"makequeue-backend/internal/model"
)

// Limits are the administrative bounds for one (role, machine type) tuple.
type Limits struct {
	// MaxSimultaneous is the maximum number of non-cancelled future
	// reservations a user may hold on machines of the type.
	MaxSimultaneous int `yaml:"max_simultaneous"`
	// MaxFutureHours is the maximum total hours across those reservations.
	MaxFutureHours float64 `yaml:"max_future_hours"`
	// HorizonHours is how far ahead of now a reservation may start.
	HorizonHours int `yaml:"horizon_hours"`
}

// Table maps role and machine type name to limits. It is plain configuration,
// loaded from YAML and read-only at runtime.
type Table struct {
	Roles map[model.Role]map[string]Limits `yaml:"roles"`
}

// defaultMemberLimits is the built-in safe fallback when the table has no
// entry at all for a machine type.
var defaultMemberLimits = Limits{
	MaxSimultaneous: 4,
	MaxFutureHours:  40,
	HorizonHours:    28 * 24,
}

// LoadTable reads a quota table from the given YAML file.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	var table Table
	if err := yaml.NewDecoder(f).Decode(&table); err != nil {
		return Table{}, fmt.Errorf("failed to decode quota table %s: %w", path, err)
	}
	return table, nil
}

// QuotaExceededError reports the first violated quota rule.
type QuotaExceededError struct {
	Rule     string
	Limit    float64
	Observed float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (limit %g, observed %g)", e.Rule, e.Limit, e.Observed)
}

// Policy evaluates quota rules against a snapshot of the table. The table is
// swapped whole on reload, so checks never observe a half-updated state.
type Policy struct {
	mu    sync.RWMutex
	table Table
}

// NewPolicy creates a policy over the given table.
func NewPolicy(table Table) *Policy {
	return &Policy{table: table}
}

// Swap replaces the whole table.
func (p *Policy) Swap(table Table) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = table
}

// LimitsFor resolves the limits for a (role, machine type) tuple. A missing
// tuple falls back to the member limits for the type, then to the built-in
// member default.
func (p *Policy) LimitsFor(role model.Role, machineTypeName string) Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if byType, ok := p.table.Roles[role]; ok {
		if limits, ok := byType[machineTypeName]; ok {
			return limits
		}
	}
	if byType, ok := p.table.Roles[model.RoleMember]; ok {
		if limits, ok := byType[machineTypeName]; ok {
			return limits
		}
	}
	return defaultMemberLimits
}

// Check evaluates the quota rules in order and returns the first violation.
// existing must be the user's non-cancelled reservations on machines of the
// given type whose end lies in the future; the function itself is pure.
func (p *Policy) Check(role model.Role, machineType *model.MachineType,
	start, end time.Time, existing []model.Reservation, now time.Time) error {

	limits := p.LimitsFor(role, machineType.Name)

	// Rule 1: advance-booking horizon.
	horizon := time.Duration(limits.HorizonHours) * time.Hour
	if lead := start.Sub(now); lead > horizon {
		return &QuotaExceededError{
			Rule:     "advance_horizon",
			Limit:    float64(limits.HorizonHours),
			Observed: lead.Hours(),
		}
	}

	// Rule 2: per-type concurrent-future limit. Adding one more must keep
	// the count within the limit.
	var count int
	var futureHours float64
	for i := range existing {
		r := &existing[i]
		if r.Cancelled() || !r.EndInstant.After(now) {
			continue
		}
		count++
		futureHours += r.Duration().Hours()
	}
	if count >= limits.MaxSimultaneous {
		return &QuotaExceededError{
			Rule:     "max_simultaneous",
			Limit:    float64(limits.MaxSimultaneous),
			Observed: float64(count),
		}
	}

	// Rule 3: per-type total-future-hours limit, counting the proposal.
	proposedHours := end.Sub(start).Hours()
	if futureHours+proposedHours > limits.MaxFutureHours {
		return &QuotaExceededError{
			Rule:     "max_hours",
			Limit:    limits.MaxFutureHours,
			Observed: futureHours + proposedHours,
		}
	}

	// Rule 4: granularity and single-reservation duration, defined by the
	// machine type.
	duration := end.Sub(start)
	if duration < machineType.MinSlot() {
		return &QuotaExceededError{
			Rule:     "min_granularity",
			Limit:    machineType.MinSlot().Hours(),
			Observed: duration.Hours(),
		}
	}
	if duration > machineType.MaxDuration() {
		return &QuotaExceededError{
			Rule:     "max_duration",
			Limit:    machineType.MaxDuration().Hours(),
			Observed: duration.Hours(),
		}
	}

	return nil
}
