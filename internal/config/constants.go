package config

type ActionStatus = string

const (
	// DefaultGroup scopes actions registered without an explicit group.
	DefaultGroup = "goqueue"

	BackendClaimStore = "claim-store"
	BackendHostCron   = "host-cron"

	HookEmailDigest  = "goqueue_email_digest"
	HookPruneLogs    = "goqueue_prune_logs"
	HookLicenseCheck = "goqueue_license_check"
)

var (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in-progress"
	ActionStatusComplete   ActionStatus = "complete"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusCanceled   ActionStatus = "canceled"

	AllowedStatuses = []ActionStatus{
		ActionStatusPending,
		ActionStatusInProgress,
		ActionStatusComplete,
		ActionStatusFailed,
		ActionStatusCanceled,
	}

	// BuiltinHooks have handlers shipped with the worker.
	BuiltinHooks = []string{
		HookEmailDigest,
		HookPruneLogs,
		HookLicenseCheck,
	}

	// FinishedStatuses are eligible for cleanup once past retention.
	FinishedStatuses = []ActionStatus{
		ActionStatusComplete,
		ActionStatusFailed,
		ActionStatusCanceled,
	}
)

// GroupOrDefault returns group, or DefaultGroup when group is empty.
func GroupOrDefault(group string) string {
	if group == "" {
		return DefaultGroup
	}
	return group
}
