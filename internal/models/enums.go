package models

// Role is the closed set of account roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDeveloper, RoleAdmin:
		return true
	}
	return false
}

// AppType is the distribution format of an app package.
type AppType string

const (
	AppTypeAPK AppType = "apk"
	AppTypeAAB AppType = "aab"
	AppTypePWA AppType = "pwa"
)

func (t AppType) Valid() bool {
	switch t {
	case AppTypeAPK, AppTypeAAB, AppTypePWA:
		return true
	}
	return false
}

// AppTypeForExt maps a package file extension to its app type.
func AppTypeForExt(ext string) (AppType, bool) {
	switch ext {
	case ".apk":
		return AppTypeAPK, true
	case ".aab":
		return AppTypeAAB, true
	case ".zip":
		return AppTypePWA, true
	}
	return "", false
}

// AppStatus is the moderation state. Only approved apps are public.
type AppStatus string

const (
	AppPending  AppStatus = "pending"
	AppApproved AppStatus = "approved"
	AppRejected AppStatus = "rejected"
)

func (s AppStatus) Valid() bool {
	switch s {
	case AppPending, AppApproved, AppRejected:
		return true
	}
	return false
}

// PurchaseStatus moves pending -> completed | failed and never back.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchaseCompleted, PurchaseFailed:
		return true
	}
	return false
}

// CanTransition reports whether a purchase may move from s to next.
// Re-applying the current state is allowed so webhook redelivery is a no-op.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	if s == next {
		return true
	}
	return s == PurchasePending && (next == PurchaseCompleted || next == PurchaseFailed)
}
