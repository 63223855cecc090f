package domain

// CleanupPolicy configures which archived carts lifecycle cleanup removes. A nil age rule disables
// age-based deletion for that status; a nil cap keeps every remaining archived cart.
type CleanupPolicy struct {
	DeleteExpiredOlderThanDays    *int `json:"deleteExpiredOlderThanDays,omitempty"`
	DeleteCancelledOlderThanDays  *int `json:"deleteCancelledOlderThanDays,omitempty"`
	DeleteCheckedOutOlderThanDays *int `json:"deleteCheckedOutOlderThanDays,omitempty"`
	MaxArchivedCartsPerScope      *int `json:"maxArchivedCartsPerScope,omitempty"`
}

// AgeRule returns the age threshold in days configured for the status.
func (p CleanupPolicy) AgeRule(status CartStatus) *int {
	switch status {
	case CartStatusExpired:
		return p.DeleteExpiredOlderThanDays
	case CartStatusCancelled:
		return p.DeleteCancelledOlderThanDays
	case CartStatusCheckedOut:
		return p.DeleteCheckedOutOlderThanDays
	default:
		return nil
	}
}

// IsEmpty reports whether the policy would never delete anything.
func (p CleanupPolicy) IsEmpty() bool {
	return p.DeleteExpiredOlderThanDays == nil &&
		p.DeleteCancelledOlderThanDays == nil &&
		p.DeleteCheckedOutOlderThanDays == nil &&
		p.MaxArchivedCartsPerScope == nil
}

// RetentionScope selects how the archived-cart cap is ranked.
type RetentionScope string

const (
	// RetentionWholeInput applies the cap across every supplied cart.
	RetentionWholeInput RetentionScope = "whole_input"
	// RetentionPerStore applies the cap independently for each store.
	RetentionPerStore RetentionScope = "per_store"
)

// CartCleanupResult lists the carts removed by a cleanup run, sorted ascending.
type CartCleanupResult struct {
	DeletedCartIDs []string
}
