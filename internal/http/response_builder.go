package http

import (
	"time"

	"squadpay/internal/core"
)

type shareResponse struct {
	Mode        string `json:"mode"`
	AmountPaise int64  `json:"amountPaise,omitempty"`
}

type memberResponse struct {
	ID             string        `json:"id"`
	DisplayName    string        `json:"displayName"`
	Contact        string        `json:"contact,omitempty"`
	Share          shareResponse `json:"share"`
	EffectivePaise int64         `json:"effectivePaise"`
	Effective      string        `json:"effective"`
	PaidPaise      int64         `json:"paidPaise"`
	SettledPaise   int64         `json:"settledPaise,omitempty"`
	DuePaise       int64         `json:"duePaise"`
	OwedPaise      int64         `json:"owedPaise"`
	Status         string        `json:"status"`
	MessageSentAt  *time.Time    `json:"messageSentAt,omitempty"`
	ScreenshotRef  string        `json:"screenshotRef,omitempty"`
	ScreenshotAt   *time.Time    `json:"screenshotReceivedAt,omitempty"`
}

type paymentResponse struct {
	ID              string           `json:"id"`
	MatchRef        string           `json:"matchRef"`
	TotalPaise      int64            `json:"totalPaise"`
	Total           string           `json:"total"`
	Status          string           `json:"status"`
	CollectedPaise  int64            `json:"collectedPaise"`
	PendingPaise    int64            `json:"pendingPaise"`
	OwedPaise       int64            `json:"owedPaise"`
	UnassignedPaise int64            `json:"unassignedPaise,omitempty"`
	Members         []memberResponse `json:"members"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
}

type eventResponse struct {
	ID          int64     `json:"id"`
	AmountPaise int64     `json:"amountPaise"`
	Amount      string    `json:"amount"`
	Method      string    `json:"method,omitempty"`
	Note        string    `json:"note,omitempty"`
	PaidAt      time.Time `json:"paidAt"`
}

func buildPaymentResponse(agg *core.Aggregate) paymentResponse {
	resp := paymentResponse{
		ID:              agg.ID,
		MatchRef:        agg.MatchRef,
		TotalPaise:      agg.TotalPaise,
		Total:           core.FormatRupees(agg.TotalPaise),
		Status:          string(agg.Status()),
		CollectedPaise:  agg.TotalCollectedPaise(),
		PendingPaise:    agg.TotalPendingPaise(),
		OwedPaise:       agg.TotalOwedPaise(),
		UnassignedPaise: agg.UnassignedPaise(),
		Members:         make([]memberResponse, 0, len(agg.Members)),
		Version:         agg.Version,
		CreatedAt:       agg.CreatedAt,
	}
	for i := range agg.Members {
		resp.Members = append(resp.Members, buildMemberResponse(&agg.Members[i]))
	}
	return resp
}

func buildEventResponse(e core.PaymentEvent) eventResponse {
	return eventResponse{
		ID:          e.ID,
		AmountPaise: e.AmountPaise,
		Amount:      core.FormatRupees(e.AmountPaise),
		Method:      string(e.Method),
		Note:        e.Note,
		PaidAt:      e.PaidAt,
	}
}

func buildMemberResponse(m *core.Member) memberResponse {
	share := shareResponse{Mode: "automatic"}
	if paise, fixed := m.Share.FixedPaise(); fixed {
		share = shareResponse{Mode: "fixed", AmountPaise: paise}
	}
	return memberResponse{
		ID:             m.ID,
		DisplayName:    m.DisplayName,
		Contact:        m.Contact,
		Share:          share,
		EffectivePaise: m.EffectivePaise(),
		Effective:      core.FormatRupees(m.EffectivePaise()),
		PaidPaise:      m.PaidPaise,
		SettledPaise:   m.SettledPaise,
		DuePaise:       m.DuePaise(),
		OwedPaise:      m.OwedPaise(),
		Status:         string(m.Status()),
		MessageSentAt:  m.MessageSentAt,
		ScreenshotRef:  m.ScreenshotRef,
		ScreenshotAt:   m.ScreenshotReceivedAt,
	}
}
