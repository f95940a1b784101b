package model

import "time"

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// User is the read-only view of an account owned by the account service.
type User struct {
	ID        string
	Email     string
	FullName  string
	Role      Role
	CreatedAt time.Time
}

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationReceipt    NotificationType = "PAYMENT_RECEIPT"
	NotificationFulfilled  NotificationType = "PURCHASE_FULFILLED"
	NotificationPaymentDue NotificationType = "PAYMENT_DUE"
	NotificationReminder   NotificationType = "BILLING_REMINDER"
)

// Notification is an in-app message shown on the user's dashboard.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	CreatedAt time.Time
	ReadAt    *time.Time
}
