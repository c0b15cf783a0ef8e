package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type notConnectedResponse struct {
	Error                   string   `json:"error"`
	ChargePointID           string   `json:"chargePointId"`
	ConnectedChargePointIDs []string `json:"connectedChargePointIds"`
}

type unknownTransactionResponse struct {
	Error          string   `json:"error"`
	ChargePointID  string   `json:"chargePointId"`
	TransactionID  string   `json:"transactionId"`
	TransactionIDs []string `json:"transactionIds"`
}
