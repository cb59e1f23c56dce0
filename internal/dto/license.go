package dto

type LicenseCheckArgs struct {
	Product string `json:"product" validate:"required"`
	Key     string `json:"key" validate:"required,min=8"`
}

// PruneLogsArgs is optional; without it the worker's retention applies.
type PruneLogsArgs struct {
	RetentionHours int `json:"retention_hours" validate:"gte=1,lte=8760"`
}
