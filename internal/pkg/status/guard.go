package status

// Kind identifies an entity type governed by a status machine.
type Kind string

const (
	KindBudget   Kind = "budget"
	KindService  Kind = "service"
	KindSchedule Kind = "schedule"
)

// machine is the untyped view of a Catalog used by the kind registry.
type machine interface {
	canTransition(from, to string) bool
	isFinal(s string) bool
	meta(s string) (Meta, bool)
	values() []string
}

type catalogMachine[S ~string] struct{ c Catalog[S] }

func (m catalogMachine[S]) canTransition(from, to string) bool {
	return m.c.CanTransition(S(from), S(to))
}

func (m catalogMachine[S]) isFinal(s string) bool { return m.c.IsFinal(S(s)) }

func (m catalogMachine[S]) meta(s string) (Meta, bool) { return m.c.Meta(S(s)) }

func (m catalogMachine[S]) values() []string {
	vals := m.c.Values()
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

var registry = map[Kind]machine{
	KindBudget:   catalogMachine[BudgetStatus]{Budgets},
	KindService:  catalogMachine[ServiceStatus]{Services},
	KindSchedule: catalogMachine[ScheduleStatus]{Schedules},
}

// CanTransitionTo reports whether target is an allowed next status of current
// for the given kind. Unknown kinds or statuses are never allowed.
func CanTransitionTo(kind Kind, current, target string) bool {
	m, ok := registry[kind]
	return ok && m.canTransition(current, target)
}

// IsFinalStatus reports whether status has no outgoing transitions.
func IsFinalStatus(kind Kind, status string) bool {
	m, ok := registry[kind]
	return ok && m.isFinal(status)
}

func IsEditable(kind Kind, status string) bool {
	return metaFor(kind, status).Editable
}

func IsActive(kind Kind, status string) bool {
	return metaFor(kind, status).Active
}

func IsPendingCustomerAction(kind Kind, status string) bool {
	return metaFor(kind, status).PendingCustomerAction
}

// Values lists the statuses declared for kind.
func Values(kind Kind) []string {
	m, ok := registry[kind]
	if !ok {
		return nil
	}
	return m.values()
}

func metaFor(kind Kind, status string) Meta {
	m, ok := registry[kind]
	if !ok {
		return Meta{}
	}
	meta, _ := m.meta(status)
	return meta
}
