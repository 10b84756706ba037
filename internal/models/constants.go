package models

const (
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	RecurrenceNone     = "none"
	RecurrenceWeekly   = "weekly"
	RecurrenceBiweekly = "biweekly"
)

const (
	TxCredit = "credit"
	TxDebit  = "debit"

	TxStatusCompleted  = "completed"
	TxStatusPending    = "pending"
	TxStatusProcessing = "processing"
)

// Collection names in the durable store.
const (
	CollectionAppointments  = "appointments"
	CollectionUsers         = "users"
	CollectionNotifications = "notifications"
	CollectionConversations = "conversations"
	CollectionTickets       = "tickets"
	CollectionCareLogs      = "care_logs"
)

const (
	// DateLayout is the canonical calendar day format.
	DateLayout = "2006-01-02"

	// DefaultFeeBasisPoints is the platform fee share (15%).
	DefaultFeeBasisPoints = 1500

	// DefaultCheckInRadiusMeters is how far from the target a check-in may be reported.
	DefaultCheckInRadiusMeters = 300

	// DefaultMaxSeriesSessions caps recurring expansion (two years of weekly sessions).
	DefaultMaxSeriesSessions = 104

	NotificationBookingCreated   = "booking_created"
	NotificationBookingCancelled = "booking_cancelled"
	NotificationShiftCompleted   = "shift_completed"
	NotificationPayoutRequested  = "payout_requested"

	TicketStatusOpen = "open"
)
