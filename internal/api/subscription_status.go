package api

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"subly-reconciler/internal/response"
	"subly-reconciler/internal/services"
)

// SubscriptionStatusView is one subscription in the status response
type SubscriptionStatusView struct {
	SubscriptionID uint64 `json:"subscription_id"`
	ServiceID      uint64 `json:"service_id"`
	ServiceName    string `json:"service_name"`
	MonthlyPrice   string `json:"monthly_price_usd"`
	Status         string `json:"status"`
	StartedAt      int64  `json:"started_at"`
	LastPaymentTs  int64  `json:"last_payment_ts"`
	NextBillingTs  int64  `json:"next_billing_ts"`
	PendingUntilTs int64  `json:"pending_until_ts,omitempty"`
	FirstPeriodPaid bool  `json:"first_period_paid"`
}

// GetSubscriptionStatus reads a user's subscriptions live from the ledger
func GetSubscriptionStatus(c *gin.Context) {
	userParam := c.Query("user")
	if userParam == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "user is required")
		return
	}

	user, err := solana.PublicKeyFromBase58(userParam)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid user address")
		return
	}

	snapshot, err := Ledger.FetchUserSubscriptions(c.Request.Context(), user)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadGateway, "Failed to read ledger")
		return
	}
	if snapshot == nil {
		response.SuccessJSON(c, gin.H{
			"user":          userParam,
			"subscriptions": []SubscriptionStatusView{},
		})
		return
	}

	registry, err := Ledger.FetchRegistry(c.Request.Context())
	if err != nil {
		response.ErrorJSON(c, http.StatusBadGateway, "Failed to read ledger")
		return
	}
	serviceNames := registry.ServiceNameByID()

	views := make([]SubscriptionStatusView, 0, len(snapshot.Subscriptions))
	for i := range snapshot.Subscriptions {
		sub := &snapshot.Subscriptions[i]
		view := SubscriptionStatusView{
			SubscriptionID:  sub.ID,
			ServiceID:       sub.ServiceID,
			ServiceName:     serviceNames[sub.ServiceID],
			MonthlyPrice:    services.MicroToUSDString(sub.MonthlyPrice),
			Status:          sub.Status.String(),
			StartedAt:       sub.StartedAt,
			LastPaymentTs:   sub.LastPaymentTs,
			NextBillingTs:   sub.NextBillingTs,
			PendingUntilTs:  sub.PendingUntilTs,
			FirstPeriodPaid: services.AlreadyProcessed(sub),
		}
		views = append(views, view)
	}

	response.SuccessJSON(c, gin.H{
		"user":                         userParam,
		"total_active_commitment_usd":  services.MicroToUSDString(snapshot.TotalActiveCommitment),
		"total_pending_commitment_usd": services.MicroToUSDString(snapshot.TotalPendingCommitment),
		"subscriptions":                views,
	})
}
