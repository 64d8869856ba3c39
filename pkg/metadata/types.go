package metadata

import "github.com/arcline/maestro/pkg/schedule"

// MethodKind distinguishes the four method categories a controller can
// declare.
type MethodKind string

const (
	KindWorkflow  MethodKind = "workflow"
	KindSignal    MethodKind = "signal"
	KindQuery     MethodKind = "query"
	KindScheduled MethodKind = "scheduled"
)

// ControllerOptions is the controller-level annotation payload.
type ControllerOptions struct {
	// TaskQueue is the default queue for every method on the
	// controller. May be empty when every method carries its own.
	TaskQueue string
}

// WorkflowOptions are per-method workflow annotations.
type WorkflowOptions struct {
	Name      string // wire-visible name; defaults to the method name
	TaskQueue string // overrides the controller default
}

// SignalOptions are per-method signal annotations.
type SignalOptions struct {
	Name string
}

// QueryOptions are per-method query annotations.
type QueryOptions struct {
	Name string
}

// ScheduleOptions are per-method schedule annotations.
type ScheduleOptions struct {
	ScheduleID   string
	Descriptor   schedule.Descriptor
	WorkflowName string // defaults to the method name
	TaskQueue    string // overrides the controller default
	Args         []any
	Memo         map[string]any
}

// MethodMeta is one annotated method as recorded in the metadata store.
type MethodMeta struct {
	Kind       MethodKind
	MethodName string
	Handler    any

	Workflow *WorkflowOptions
	Signal   *SignalOptions
	Query    *QueryOptions
	Schedule *ScheduleOptions
}

// WorkflowMethodInfo is a discovered workflow method.
type WorkflowMethodInfo struct {
	MethodName string
	PublicName string
	Options    WorkflowOptions
	Handler    any
}

// SignalMethodInfo is a discovered signal method.
type SignalMethodInfo struct {
	MethodName string
	PublicName string
	Options    SignalOptions
	Handler    any
}

// QueryMethodInfo is a discovered query method.
type QueryMethodInfo struct {
	MethodName string
	PublicName string
	Options    QueryOptions
	Handler    any
}

// ScheduledMethodInfo is a discovered scheduled method with its resolved
// workflow binding. Controller is a non-owning back-reference.
type ScheduledMethodInfo struct {
	MethodName   string
	WorkflowName string
	Schedule     ScheduleOptions
	TaskQueue    string // resolved: method option or controller default
	Handler      any
	Controller   *ControllerInfo
}

// ControllerInfo is the discovered inventory of one controller instance.
// The controller owns its method infos; they never outlive it.
type ControllerInfo struct {
	Instance  any
	TaskQueue string
	Workflows []WorkflowMethodInfo
	Signals   []SignalMethodInfo
	Queries   []QueryMethodInfo
	Scheduled []ScheduledMethodInfo
}

// Stats summarizes a completed scan.
type Stats struct {
	Controllers int `json:"controllers"`
	Workflows   int `json:"workflows"`
	Signals     int `json:"signals"`
	Queries     int `json:"queries"`
	Scheduled   int `json:"scheduled"`
}
