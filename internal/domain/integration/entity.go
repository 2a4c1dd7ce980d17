package integration

// ---------------------------------------------------------------------------
// EntityType is a synchronized business object type
// ---------------------------------------------------------------------------

// EntityType identifies which kind of record a sync pass works on
type EntityType string

const (
	EntityProduct   EntityType = "product"
	EntityCustomer  EntityType = "customer"
	EntityOrder     EntityType = "order"
	EntityInventory EntityType = "inventory"
	// EntityCollection groups products for the storefront
	EntityCollection EntityType = "collection"
	// EntityPriceRule is a discount with its first discount code
	EntityPriceRule EntityType = "price_rule"
)

// IsValid returns true if the entity type is valid
func (e EntityType) IsValid() bool {
	switch e {
	case EntityProduct, EntityCustomer, EntityOrder, EntityInventory, EntityCollection, EntityPriceRule:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType
func (e EntityType) String() string {
	return string(e)
}

// PipelineOrder is the order in which scheduled passes visit entity types.
// Orders reference customers, inventory references product variants and
// price rules reference products and collections, so each runs after its
// dependencies.
func PipelineOrder() []EntityType {
	return []EntityType{EntityCustomer, EntityProduct, EntityCollection, EntityInventory, EntityOrder, EntityPriceRule}
}

// ParseEntityType parses and validates an entity type string
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if !e.IsValid() {
		return "", ErrInvalidEntityType
	}
	return e, nil
}

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction tells which side of the connection is the source of a pass
type Direction string

const (
	// DirectionImport reads the remote store and writes the local store
	DirectionImport Direction = "import"
	// DirectionExport reads the local store and writes the remote store
	DirectionExport Direction = "export"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionImport || d == DirectionExport
}

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// ParseDirection parses and validates a direction string
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.IsValid() {
		return "", ErrInvalidDirection
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// JobKind and Trigger
// ---------------------------------------------------------------------------

// JobKind distinguishes full passes from single-record passes
type JobKind string

const (
	JobKindBatch       JobKind = "batch"
	JobKindIncremental JobKind = "incremental"
)

// Trigger records what started a job
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerWebhook  Trigger = "webhook"
	TriggerRetry    Trigger = "retry"
)

// IsValid returns true if the trigger is valid
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerSchedule, TriggerWebhook, TriggerRetry:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncAction and LogStatus
// ---------------------------------------------------------------------------

// SyncAction is what the engine did with one record
type SyncAction string

const (
	ActionCreate     SyncAction = "create"
	ActionUpdate     SyncAction = "update"
	ActionUnchanged  SyncAction = "unchanged"
	ActionDeactivate SyncAction = "deactivate"
	ActionSkip       SyncAction = "skip"
)

// LogStatus is the outcome of one record
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusSkipped LogStatus = "skipped"
	LogStatusErrored LogStatus = "errored"
)

// IsValid returns true if the log status is valid
func (s LogStatus) IsValid() bool {
	switch s {
	case LogStatusSuccess, LogStatusSkipped, LogStatusErrored:
		return true
	default:
		return false
	}
}
