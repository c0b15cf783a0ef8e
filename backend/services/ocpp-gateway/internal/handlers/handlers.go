package handlers

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
	"ocppgateway/backend/services/ocpp-gateway/internal/service"
)

// Store is the station state the handlers read and mutate.
type Store interface {
	NextTransactionID() int
	UpdateConnectorStatus(identity string, status models.ConnectorStatus) error
	OpenTransaction(identity string, tx models.Transaction) error
	AppendMeterSample(identity string, txID models.TransactionID, sample models.MeterSample) bool
	CloseTransaction(identity string, txID models.TransactionID, meterStop *float64, endTime *time.Time, reason string) (models.Transaction, error)
	OpenTransactionIDs(identity string, connectorID int, evseID *int) []models.TransactionID
	Transaction(identity string, txID models.TransactionID) (models.Transaction, error)
}

// BillingNotifier receives transaction boundaries. Calls must not block.
type BillingNotifier interface {
	NotifyTransactionStarted(tx models.Transaction)
	NotifyTransactionStopped(tx models.Transaction)
}

// TelemetryPublisher fans station data out to subscribers. Calls must not block.
type TelemetryPublisher interface {
	PublishMeterSample(identity string, txID models.TransactionID, sample models.MeterSample)
	PublishConnectorStatus(identity string, status models.ConnectorStatus)
}

// Deps holds what the handlers need. Billing and Telemetry may be nil.
type Deps struct {
	Store             Store
	Billing           BillingNotifier
	Telemetry         TelemetryPublisher
	HeartbeatInterval time.Duration
	CloseOnAvailable  bool
	Logger            *zap.Logger
	Now               func() time.Time
}

func (d Deps) withDefaults() *Deps {
	if d.Billing == nil {
		d.Billing = noopBilling{}
	}
	if d.Telemetry == nil {
		d.Telemetry = noopTelemetry{}
	}
	if d.HeartbeatInterval <= 0 {
		d.HeartbeatInterval = 300 * time.Second
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &d
}

// Register attaches every station-initiated action to the router.
func Register(router *ocpp.Router, deps Deps) {
	d := deps.withDefaults()
	both := []protocol.Dialect{protocol.DialectV16, protocol.DialectV2x}

	router.Register(protocol.ActionBootNotification, NewBootNotificationHandler(d), both...)
	router.Register(protocol.ActionHeartbeat, NewHeartbeatHandler(d), both...)
	router.Register(protocol.ActionStatusNotification, NewStatusNotificationHandler(d), both...)
	router.Register(protocol.ActionAuthorize, NewAuthorizeHandler(d), both...)
	router.Register(protocol.ActionMeterValues, NewMeterValuesHandler(d), both...)
	router.Register(protocol.ActionStartTransaction, NewStartTransactionHandler(d), protocol.DialectV16)
	router.Register(protocol.ActionStopTransaction, NewStopTransactionHandler(d), protocol.DialectV16)
	router.Register(protocol.ActionTransactionEvent, NewTransactionEventHandler(d), protocol.DialectV2x)
}

func (d *Deps) openTransaction(identity string, tx models.Transaction) {
	tx.StationIdentity = identity
	if tx.StartTime.IsZero() {
		tx.StartTime = d.Now()
	}
	if err := d.Store.OpenTransaction(identity, tx); err != nil {
		d.Logger.Warn("transaction for unknown station",
			zap.String("station_id", identity),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return
	}
	d.Logger.Info("transaction started",
		zap.String("station_id", identity),
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("connector_id", tx.ConnectorID),
	)
	d.Billing.NotifyTransactionStarted(tx)
}

func (d *Deps) closeTransaction(identity string, txID models.TransactionID, meterStop *float64, endTime *time.Time, reason string) {
	tx, err := d.Store.CloseTransaction(identity, txID, meterStop, endTime, reason)
	switch {
	case err == nil:
		d.Logger.Info("transaction stopped",
			zap.String("station_id", identity),
			zap.String("transaction_id", txID.String()),
			zap.String("reason", reason),
		)
		d.Billing.NotifyTransactionStopped(tx)
	case errors.Is(err, service.ErrAlreadyClosed):
		d.Logger.Debug("transaction already closed",
			zap.String("station_id", identity),
			zap.String("transaction_id", txID.String()),
		)
	default:
		d.Logger.Warn("stop for unknown transaction",
			zap.String("station_id", identity),
			zap.String("transaction_id", txID.String()),
			zap.Error(err),
		)
	}
}

func (d *Deps) appendSamples(identity string, txID models.TransactionID, values []protocol.MeterValue) int {
	appended := 0
	for _, mv := range values {
		sample := toSample(mv)
		if sample.Timestamp.IsZero() {
			sample.Timestamp = d.Now()
		}
		if !d.Store.AppendMeterSample(identity, txID, sample) {
			d.Logger.Debug("dropping meter sample for unknown transaction",
				zap.String("station_id", identity),
				zap.String("transaction_id", txID.String()),
			)
			return appended
		}
		d.Telemetry.PublishMeterSample(identity, txID, sample)
		appended++
	}
	return appended
}

type noopBilling struct{}

func (noopBilling) NotifyTransactionStarted(models.Transaction) {}
func (noopBilling) NotifyTransactionStopped(models.Transaction) {}

type noopTelemetry struct{}

func (noopTelemetry) PublishMeterSample(string, models.TransactionID, models.MeterSample) {}
func (noopTelemetry) PublishConnectorStatus(string, models.ConnectorStatus)               {}
