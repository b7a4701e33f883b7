package enums

import "fmt"

// LicenseRequestStatus maps to the license_request_status enum in Postgres.
type LicenseRequestStatus string

const (
	LicenseRequestStatusPending  LicenseRequestStatus = "pending"
	LicenseRequestStatusApproved LicenseRequestStatus = "approved"
	LicenseRequestStatusRejected LicenseRequestStatus = "rejected"
)

var validLicenseRequestStatuses = []LicenseRequestStatus{
	LicenseRequestStatusPending,
	LicenseRequestStatusApproved,
	LicenseRequestStatusRejected,
}

// String implements fmt.Stringer.
func (s LicenseRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical license_request_status enum.
func (s LicenseRequestStatus) IsValid() bool {
	for _, candidate := range validLicenseRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined from the status.
func (s LicenseRequestStatus) IsTerminal() bool {
	return s == LicenseRequestStatusApproved || s == LicenseRequestStatusRejected
}

// ParseLicenseRequestStatus converts raw input into LicenseRequestStatus.
func ParseLicenseRequestStatus(value string) (LicenseRequestStatus, error) {
	for _, candidate := range validLicenseRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license request status %q", value)
}

// ParseLicenseRequestDecision accepts only the terminal operator decisions.
func ParseLicenseRequestDecision(value string) (LicenseRequestStatus, error) {
	status, err := ParseLicenseRequestStatus(value)
	if err != nil {
		return "", err
	}
	if !status.IsTerminal() {
		return "", fmt.Errorf("status %q is not a decision", value)
	}
	return status, nil
}
