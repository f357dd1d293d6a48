package models

// Payout record status lifecycle. A record is created as pending before the
// provider call, marked paid (or skipped when live payouts are disabled) once
// the payout call returns, settled after the on-ledger settlement confirms,
// failed otherwise. A settled record is the terminal success state.
const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
	PayoutStatusSkipped = "skipped"
	PayoutStatusSettled = "settled"
	PayoutStatusFailed  = "failed"
)

// Scan sources.
const (
	ScanKindDue        = "due"
	ScanKindActivation = "activation"
)

// PayoutRecord is the local journal entry for one resolution attempt.
// The ledger remains the system of record; this journal exists for audit and
// the ops API, never for settlement decisions.
type PayoutRecord struct {
	BaseModel

	RunID  string `json:"run_id" gorm:"size:64;index"`
	Source string `json:"source" gorm:"size:20;index"` // due or activation

	User           string `json:"user" gorm:"size:44;index"`
	SubscriptionID uint64 `json:"subscription_id" gorm:"index"`
	ServiceID      uint64 `json:"service_id"`
	ServiceName    string `json:"service_name" gorm:"size:64"`

	AmountMicros  uint64 `json:"amount_micros"`
	AmountUSD     string `json:"amount_usd" gorm:"size:20"`
	RecipientType string `json:"recipient_type" gorm:"size:20"`
	Receiver      string `json:"receiver" gorm:"size:128"`
	DueTs         int64  `json:"due_ts"`

	PayPalBatchID       string `json:"paypal_batch_id" gorm:"size:64"`
	SettlementSignature string `json:"settlement_signature" gorm:"size:96"`
	SettlementStatus    string `json:"settlement_status" gorm:"size:24"` // subscription status after settlement

	Status        string `json:"status" gorm:"size:16;index"`
	FailureReason string `json:"failure_reason" gorm:"type:text"`
}

// TableName sets the table name
func (PayoutRecord) TableName() string {
	return "payout_records"
}

// ScanRun records one reconciliation run of either scanner.
type ScanRun struct {
	BaseModel

	RunID string `json:"run_id" gorm:"size:64;uniqueIndex"`
	Kind  string `json:"kind" gorm:"size:20;index"` // due or activation

	StartedAt  int64 `json:"started_at"`
	FinishedAt int64 `json:"finished_at"`

	AccountsScanned     int    `json:"accounts_scanned"`
	TransactionsScanned int    `json:"transactions_scanned"`
	EntriesFound        int    `json:"entries_found"`
	Settled             int    `json:"settled"`
	Skipped             int    `json:"skipped"`
	Failed              int    `json:"failed"`
	Error               string `json:"error" gorm:"type:text"`
}

// TableName sets the table name
func (ScanRun) TableName() string {
	return "scan_runs"
}
