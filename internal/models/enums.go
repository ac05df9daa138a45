package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// enumTable is an explicit bidirectional mapping between the storage
// vocabulary and the API vocabulary of one enum. Unknown input on
// either side is rejected.
type enumTable[T ~string] struct {
	name    string
	toAPI   map[T]string
	fromAPI map[string]T
}

func newEnumTable[T ~string](name string, pairs map[T]string) enumTable[T] {
	fromAPI := make(map[string]T, len(pairs))
	for stored, api := range pairs {
		fromAPI[api] = stored
	}
	return enumTable[T]{name: name, toAPI: pairs, fromAPI: fromAPI}
}

func (t enumTable[T]) parseAPI(s string) (T, error) {
	if v, ok := t.fromAPI[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", t.name, s)
}

func (t enumTable[T]) parseStorage(s string) (T, error) {
	v := T(s)
	if _, ok := t.toAPI[v]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown stored %s %q", t.name, s)
}

func (t enumTable[T]) api(v T) string {
	return t.toAPI[v]
}

func (t enumTable[T]) marshal(v T) ([]byte, error) {
	api, ok := t.toAPI[v]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown %s %q", t.name, string(v))
	}
	return json.Marshal(api)
}

func (t enumTable[T]) unmarshal(data []byte) (T, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return t.parseAPI(s)
}

func (t enumTable[T]) value(v T) (driver.Value, error) {
	if _, ok := t.toAPI[v]; !ok {
		return nil, fmt.Errorf("cannot store unknown %s %q", t.name, string(v))
	}
	return string(v), nil
}

func (t enumTable[T]) scan(src any) (T, error) {
	switch s := src.(type) {
	case string:
		return t.parseStorage(s)
	case []byte:
		return t.parseStorage(string(s))
	default:
		return "", fmt.Errorf("cannot scan %T into %s", src, t.name)
	}
}

// Availability of an agent for work
type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityBusy      Availability = "BUSY"
	AvailabilityOffline   Availability = "OFFLINE"
)

var availabilityTable = newEnumTable("availability", map[Availability]string{
	AvailabilityAvailable: "available",
	AvailabilityBusy:      "busy",
	AvailabilityOffline:   "offline",
})

// ParseAvailability converts an API value (available|busy|offline)
func ParseAvailability(s string) (Availability, error) {
	return availabilityTable.parseAPI(s)
}

func (a Availability) APIValue() string {
	return availabilityTable.api(a)
}

func (a Availability) MarshalJSON() ([]byte, error) {
	return availabilityTable.marshal(a)
}

func (a Availability) Value() (driver.Value, error) {
	return availabilityTable.value(a)
}

func (a *Availability) UnmarshalJSON(data []byte) (err error) {
	*a, err = availabilityTable.unmarshal(data)
	return err
}

func (a *Availability) Scan(src any) (err error) {
	*a, err = availabilityTable.scan(src)
	return err
}

// VerificationStatus is the lifecycle state of a verification request.
// PENDING moves to VERIFIED or EXPIRED; both are terminal.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationExpired  VerificationStatus = "EXPIRED"
)

var verificationStatusTable = newEnumTable("verification status", map[VerificationStatus]string{
	VerificationPending:  "pending",
	VerificationVerified: "verified",
	VerificationExpired:  "expired",
})

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	return verificationStatusTable.parseAPI(s)
}

func (v VerificationStatus) APIValue() string {
	return verificationStatusTable.api(v)
}

func (v VerificationStatus) MarshalJSON() ([]byte, error) {
	return verificationStatusTable.marshal(v)
}

func (v VerificationStatus) Value() (driver.Value, error) {
	return verificationStatusTable.value(v)
}

func (v *VerificationStatus) UnmarshalJSON(data []byte) (err error) {
	*v, err = verificationStatusTable.unmarshal(data)
	return err
}

func (v *VerificationStatus) Scan(src any) (err error) {
	*v, err = verificationStatusTable.scan(src)
	return err
}

// ContributionStatus tracks the pull request behind a contribution
type ContributionStatus string

const (
	ContributionPending ContributionStatus = "PENDING"
	ContributionMerged  ContributionStatus = "MERGED"
	ContributionClosed  ContributionStatus = "CLOSED"
)

var contributionStatusTable = newEnumTable("contribution status", map[ContributionStatus]string{
	ContributionPending: "pending",
	ContributionMerged:  "merged",
	ContributionClosed:  "closed",
})

// ParseContributionStatus converts an API value (pending|merged|closed)
func ParseContributionStatus(s string) (ContributionStatus, error) {
	return contributionStatusTable.parseAPI(s)
}

func (c ContributionStatus) APIValue() string {
	return contributionStatusTable.api(c)
}

func (c ContributionStatus) MarshalJSON() ([]byte, error) {
	return contributionStatusTable.marshal(c)
}

func (c ContributionStatus) Value() (driver.Value, error) {
	return contributionStatusTable.value(c)
}

func (c *ContributionStatus) UnmarshalJSON(data []byte) (err error) {
	*c, err = contributionStatusTable.unmarshal(data)
	return err
}

func (c *ContributionStatus) Scan(src any) (err error) {
	*c, err = contributionStatusTable.scan(src)
	return err
}

// CanTransitionTo reports whether a status update from c to next is allowed.
// Same-status updates are allowed as no-ops; merged is terminal.
func (c ContributionStatus) CanTransitionTo(next ContributionStatus) bool {
	if c == next {
		return true
	}
	switch c {
	case ContributionPending:
		return next == ContributionMerged || next == ContributionClosed
	case ContributionClosed:
		return next == ContributionPending || next == ContributionMerged
	default:
		return false
	}
}

// UpvoteTarget is the kind of entity an upvote points at
type UpvoteTarget string

const (
	UpvoteTargetPost    UpvoteTarget = "post"
	UpvoteTargetComment UpvoteTarget = "comment"
)

var upvoteTargetTable = newEnumTable("upvote target", map[UpvoteTarget]string{
	UpvoteTargetPost:    "post",
	UpvoteTargetComment: "comment",
})

func ParseUpvoteTarget(s string) (UpvoteTarget, error) {
	return upvoteTargetTable.parseAPI(s)
}

func (u UpvoteTarget) MarshalJSON() ([]byte, error) {
	return upvoteTargetTable.marshal(u)
}
