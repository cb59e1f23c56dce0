package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Action is a scheduled unit of work in the claim store.
type Action struct {
	ID              uint           `gorm:"primaryKey;autoIncrement"`
	Hook            string         `gorm:"type:varchar(191);not null;index:idx_actions_match,priority:1"`
	Args            datatypes.JSON `gorm:"type:text"`
	ArgsKey         string         `gorm:"type:char(40);not null;index:idx_actions_match,priority:2"`
	Group           string         `gorm:"column:group_name;type:varchar(191);not null;index:idx_actions_match,priority:3"`
	Status          string         `gorm:"type:varchar(20);not null;default:'pending';index:idx_actions_due,priority:1"`
	ScheduledAt     time.Time      `gorm:"not null;index:idx_actions_due,priority:2"`
	IntervalSeconds int64          `gorm:"not null;default:0"`
	ClaimID         uint           `gorm:"not null;default:0;index"`
	Attempts        int            `gorm:"not null;default:0"`
	LastAttemptAt   *time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// Recurring reports whether the action reschedules itself after running.
func (a *Action) Recurring() bool { return a.IntervalSeconds > 0 }

// Interval returns the recurrence interval, zero for single-shot actions.
func (a *Action) Interval() time.Duration {
	return time.Duration(a.IntervalSeconds) * time.Second
}

// DecodeArgs parses the stored argument list.
func (a *Action) DecodeArgs() (Args, error) {
	return ParseArgs(a.Args)
}

// Claim is a reservation over a batch of actions. Actions point at it through
// ClaimID; a claim row without actions is harmless and is removed on release.
type Claim struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ActionLog is an audit entry attached to an action.
type ActionLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ActionID  uint      `gorm:"not null;index"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Args is the ordered argument list passed to a hook handler. Two lists are
// the same when their JSON encodings are identical, so order and JSON type
// both matter.
type Args []any

// ParseArgs decodes a JSON array. Empty input yields an empty list.
func ParseArgs(raw []byte) (Args, error) {
	if len(raw) == 0 {
		return Args{}, nil
	}
	var a Args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	if a == nil {
		a = Args{}
	}
	return a, nil
}

// Encode returns the canonical JSON encoding. nil encodes like an empty list.
func (a Args) Encode() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal([]any(a))
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return b, nil
}

// Key is the matching key stored next to the arguments.
func (a Args) Key() (string, error) {
	b, err := a.Encode()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// Equal compares by encoding; lists that cannot be encoded are never equal.
func (a Args) Equal(b Args) bool {
	x, err := a.Encode()
	if err != nil {
		return false
	}
	y, err := b.Encode()
	if err != nil {
		return false
	}
	return string(x) == string(y)
}

// Decode unmarshals the i-th argument into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("decode args: index %d out of range (len %d)", i, len(a))
	}
	b, err := json.Marshal(a[i])
	if err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// StakedClaim is the result of staking a claim: the claim and the actions it
// owns, in execution order.
type StakedClaim struct {
	ID        uint
	ActionIDs []uint
}
