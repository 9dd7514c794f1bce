package handlers

import "net/http"

type creditView struct {
	Balance   int64 `json:"balance"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
	Threshold int64 `json:"threshold"`
	Low       bool  `json:"low"`
}

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}
	acct, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	threshold := a.Ledger.Threshold()
	a.json(w, http.StatusOK, creditView{
		Balance:   acct.Balance,
		Reserved:  acct.Reserved,
		Available: acct.Available(),
		Threshold: threshold,
		Low:       acct.Available() <= threshold,
	})
}
