package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

var errMissingTransactionID = errors.New("transactionInfo.transactionId is required")

// NewTransactionEventHandler drives the 2.x transaction lifecycle from eventType.
func NewTransactionEventHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.TransactionEventRequest](payload)
		if err != nil {
			return nil, err
		}
		if req.TransactionInfo.TransactionID == "" {
			return nil, &ocpp.FormatError{Err: errMissingTransactionID}
		}
		id := models.StringTransactionID(req.TransactionInfo.TransactionID)
		dialect := station.Version.Dialect()

		switch req.EventType {
		case protocol.EventStarted:
			if _, err := d.Store.Transaction(station.Identity, id); err == nil {
				d.Logger.Debug("duplicate transaction start",
					zap.String("station_id", station.Identity),
					zap.String("transaction_id", id.String()),
				)
			} else {
				d.openTransaction(station.Identity, startedTransaction(id, dialect, req))
			}
			d.appendSamples(station.Identity, id, req.MeterValue)
			return protocol.TransactionEventResponse{
				IdTokenInfo: &protocol.IdTokenInfo{Status: protocol.StatusAccepted},
			}, nil
		case protocol.EventUpdated:
			d.appendSamples(station.Identity, id, req.MeterValue)
			return protocol.TransactionEventResponse{}, nil
		case protocol.EventEnded:
			d.appendSamples(station.Identity, id, req.MeterValue)
			d.closeTransaction(station.Identity, id, energyRegister(dialect, req.MeterValue), req.Timestamp, req.TransactionInfo.StoppedReason)
			return protocol.TransactionEventResponse{}, nil
		default:
			return nil, &ocpp.FormatError{Err: fmt.Errorf("unknown eventType %q", req.EventType)}
		}
	}
}

func startedTransaction(id models.TransactionID, dialect protocol.Dialect, req protocol.TransactionEventRequest) models.Transaction {
	tx := models.Transaction{
		ID:         id,
		MeterStart: energyRegister(dialect, req.MeterValue),
	}
	if req.EVSE != nil {
		evseID := req.EVSE.ID
		tx.EvseID = &evseID
		tx.ConnectorID = req.EVSE.ID
		if req.EVSE.ConnectorID != nil {
			tx.ConnectorID = *req.EVSE.ConnectorID
		}
	}
	if req.IdToken != nil {
		tx.IdTag = req.IdToken.IdToken
	}
	if req.Timestamp != nil {
		tx.StartTime = req.Timestamp.UTC()
	}
	return tx
}
