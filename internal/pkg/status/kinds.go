package status

type BudgetStatus string

const (
	BudgetDraft      BudgetStatus = "DRAFT"
	BudgetPending    BudgetStatus = "PENDING"
	BudgetApproved   BudgetStatus = "APPROVED"
	BudgetInProgress BudgetStatus = "IN_PROGRESS"
	BudgetCompleted  BudgetStatus = "COMPLETED"
	BudgetRejected   BudgetStatus = "REJECTED"
	BudgetCancelled  BudgetStatus = "CANCELLED"
	BudgetExpired    BudgetStatus = "EXPIRED"
)

type ServiceStatus string

const (
	ServicePending      ServiceStatus = "PENDING"
	ServiceScheduling   ServiceStatus = "SCHEDULING"
	ServicePreparing    ServiceStatus = "PREPARING"
	ServiceInProgress   ServiceStatus = "IN_PROGRESS"
	ServiceOnHold       ServiceStatus = "ON_HOLD"
	ServiceScheduled    ServiceStatus = "SCHEDULED"
	ServiceCompleted    ServiceStatus = "COMPLETED"
	ServiceCancelled    ServiceStatus = "CANCELLED"
	ServicePartial      ServiceStatus = "PARTIAL"
	ServiceNotPerformed ServiceStatus = "NOT_PERFORMED"
)

type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleConfirmed ScheduleStatus = "CONFIRMED"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
	ScheduleNoShow    ScheduleStatus = "NO_SHOW"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// Budgets reopen from EXPIRED back to DRAFT so an expired quote can be recreated.
var Budgets = MustCatalog(BudgetDraft,
	[]Edge[BudgetStatus]{
		{From: BudgetDraft, To: []BudgetStatus{BudgetPending, BudgetCancelled}},
		{From: BudgetPending, To: []BudgetStatus{BudgetApproved, BudgetRejected, BudgetExpired, BudgetCancelled}},
		{From: BudgetApproved, To: []BudgetStatus{BudgetInProgress, BudgetCancelled}},
		{From: BudgetInProgress, To: []BudgetStatus{BudgetCompleted, BudgetCancelled}},
		{From: BudgetCompleted},
		{From: BudgetRejected},
		{From: BudgetCancelled},
		{From: BudgetExpired, To: []BudgetStatus{BudgetDraft}},
	},
	map[BudgetStatus]Meta{
		BudgetDraft:      {Label: "Draft", Description: "Budget is being drafted", Color: "#6C757D", Icon: "edit", Editable: true, Active: true},
		BudgetPending:    {Label: "Pending", Description: "Waiting for customer approval", Color: "#FFC107", Icon: "clock", Active: true, PendingCustomerAction: true},
		BudgetApproved:   {Label: "Approved", Description: "Budget approved by the customer", Color: "#28A745", Icon: "check-circle", Active: true},
		BudgetInProgress: {Label: "In progress", Description: "Services are being executed", Color: "#17A2B8", Icon: "cogs", Active: true},
		BudgetCompleted:  {Label: "Completed", Description: "All services finished", Color: "#007BFF", Icon: "check-double"},
		BudgetRejected:   {Label: "Rejected", Description: "Budget rejected by the customer", Color: "#DC3545", Icon: "times-circle"},
		BudgetCancelled:  {Label: "Cancelled", Description: "Budget cancelled", Color: "#6C757D", Icon: "ban"},
		BudgetExpired:    {Label: "Expired", Description: "Budget expired before approval", Color: "#FFA500", Icon: "calendar-times"},
	},
)

var Services = MustCatalog(ServicePending,
	[]Edge[ServiceStatus]{
		{From: ServicePending, To: []ServiceStatus{ServiceScheduling, ServiceCancelled}},
		{From: ServiceScheduling, To: []ServiceStatus{ServicePreparing, ServiceScheduled, ServiceCancelled}},
		{From: ServicePreparing, To: []ServiceStatus{ServiceInProgress, ServiceOnHold}},
		{From: ServiceInProgress, To: []ServiceStatus{ServiceOnHold, ServiceCompleted, ServicePartial, ServiceNotPerformed}},
		{From: ServiceOnHold, To: []ServiceStatus{ServiceInProgress, ServiceScheduled}},
		{From: ServiceScheduled, To: []ServiceStatus{ServicePreparing, ServiceCancelled}},
		{From: ServiceCompleted},
		{From: ServiceCancelled},
		{From: ServicePartial, To: []ServiceStatus{ServiceScheduled}},
		{From: ServiceNotPerformed, To: []ServiceStatus{ServiceScheduled}},
	},
	map[ServiceStatus]Meta{
		ServicePending:      {Label: "Pending", Description: "Waiting to be scheduled", Color: "#ffc107", Icon: "bi-clock", Editable: true, Active: true},
		ServiceScheduling:   {Label: "Scheduling", Description: "Scheduling in progress", Color: "#007bff", Icon: "bi-calendar-check", Editable: true, Active: true, PendingCustomerAction: true},
		ServicePreparing:    {Label: "Preparing", Description: "Being prepared", Color: "#ffc107", Icon: "bi-tools", Active: true},
		ServiceInProgress:   {Label: "In progress", Description: "Being performed", Color: "#007bff", Icon: "bi-gear", Active: true},
		ServiceOnHold:       {Label: "On hold", Description: "Paused", Color: "#6c757d", Icon: "bi-pause-circle", Active: true},
		ServiceScheduled:    {Label: "Scheduled", Description: "Scheduled with the customer", Color: "#007bff", Icon: "bi-calendar-plus", Active: true},
		ServiceCompleted:    {Label: "Completed", Description: "Finished", Color: "#28a745", Icon: "bi-check-circle"},
		ServiceCancelled:    {Label: "Cancelled", Description: "Cancelled", Color: "#dc3545", Icon: "bi-x-circle"},
		ServicePartial:      {Label: "Partial", Description: "Partially finished, needs a new visit", Color: "#28a745", Icon: "bi-check-circle-fill"},
		ServiceNotPerformed: {Label: "Not performed", Description: "Visit happened but work was not performed", Color: "#dc3545", Icon: "bi-slash-circle"},
	},
)

var Schedules = MustCatalog(SchedulePending,
	[]Edge[ScheduleStatus]{
		{From: SchedulePending, To: []ScheduleStatus{ScheduleConfirmed, ScheduleCancelled}},
		{From: ScheduleConfirmed, To: []ScheduleStatus{ScheduleCompleted, ScheduleNoShow, ScheduleCancelled}},
		{From: ScheduleCompleted},
		{From: ScheduleNoShow},
		{From: ScheduleCancelled},
	},
	map[ScheduleStatus]Meta{
		SchedulePending:   {Label: "Pending", Description: "Waiting for customer confirmation", Color: "#ffc107", Icon: "bi-clock", Editable: true, Active: true, PendingCustomerAction: true},
		ScheduleConfirmed: {Label: "Confirmed", Description: "Confirmed by the customer", Color: "#28a745", Icon: "bi-calendar-check", Active: true},
		ScheduleCompleted: {Label: "Completed", Description: "Visit done", Color: "#007bff", Icon: "bi-check-circle"},
		ScheduleNoShow:    {Label: "No show", Description: "Customer did not show up", Color: "#dc3545", Icon: "bi-person-x"},
		ScheduleCancelled: {Label: "Cancelled", Description: "Cancelled", Color: "#6c757d", Icon: "bi-x-circle"},
	},
)
