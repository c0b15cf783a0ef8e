package service

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

var (
	ErrStationNotFound     = errors.New("station not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyClosed       = errors.New("transaction already closed")
)

// MeterQuery filters meter samples. Limit keeps the most recent N samples, Since drops
// samples older than the given instant. Zero values disable the filter.
type MeterQuery struct {
	Limit int
	Since *time.Time
}

type stationRecord struct {
	mu           sync.Mutex
	identity     string
	version      protocol.Version
	generation   uint64
	connectedAt  time.Time
	connectors   map[int]models.ConnectorStatus
	transactions map[string]*models.Transaction
	order        []string
}

func newStationRecord(identity string, version protocol.Version, generation uint64, now time.Time) *stationRecord {
	return &stationRecord{
		identity:     identity,
		version:      version,
		generation:   generation,
		connectedAt:  now,
		connectors:   make(map[int]models.ConnectorStatus),
		transactions: make(map[string]*models.Transaction),
	}
}

// StationStore keeps in-memory station data for the lifetime of each connection.
// The store lock only guards the station map; every record carries its own mutex so
// stations never contend with each other.
type StationStore struct {
	mu         sync.RWMutex
	stations   map[string]*stationRecord
	generation uint64
	txSeq      atomic.Int64
	now        func() time.Time
}

// NewStationStore returns an empty store.
func NewStationStore() *StationStore {
	return &StationStore{
		stations: make(map[string]*stationRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterStation creates a fresh record, discarding any previous one for the identity.
// The returned generation must be passed to RemoveStation.
func (s *StationStore) RegisterStation(identity string, version protocol.Version) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.stations[models.StationKey(identity)] = newStationRecord(identity, version, s.generation, s.now())
	return s.generation
}

// RemoveStation discards the record if it still belongs to the given generation.
func (s *StationStore) RemoveStation(identity string, generation uint64) bool {
	key := models.StationKey(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.stations[key]
	if !ok || rec.generation != generation {
		return false
	}
	delete(s.stations, key)
	return true
}

// NextTransactionID issues a gateway-wide unique, monotonically increasing integer id.
func (s *StationStore) NextTransactionID() int {
	return int(s.txSeq.Add(1))
}

func (s *StationStore) record(identity string) (*stationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.stations[models.StationKey(identity)]
	return rec, ok
}

// UpdateConnectorStatus upserts the connector status. Last write wins.
func (s *StationStore) UpdateConnectorStatus(identity string, status models.ConnectorStatus) error {
	rec, ok := s.record(identity)
	if !ok {
		return ErrStationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	status.UpdatedAt = s.now()
	rec.connectors[status.ConnectorID] = status
	return nil
}

// OpenTransaction inserts the transaction, replacing one with the same id.
func (s *StationStore) OpenTransaction(identity string, tx models.Transaction) error {
	rec, ok := s.record(identity)
	if !ok {
		return ErrStationNotFound
	}
	if tx.StartTime.IsZero() {
		tx.StartTime = s.now()
	}
	tx.StationIdentity = rec.identity
	tx.EndTime = nil
	tx.Samples = nil

	rec.mu.Lock()
	defer rec.mu.Unlock()
	key := tx.ID.String()
	if _, exists := rec.transactions[key]; !exists {
		rec.order = append(rec.order, key)
	}
	rec.transactions[key] = &tx
	return nil
}

// AppendMeterSample adds a sample to the transaction log. Unknown stations, unknown
// transactions and closed transactions are ignored and reported as false.
func (s *StationStore) AppendMeterSample(identity string, txID models.TransactionID, sample models.MeterSample) bool {
	rec, ok := s.record(identity)
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	tx, ok := rec.transactions[txID.String()]
	if !ok || !tx.IsOpen() {
		return false
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}
	tx.Samples = append(tx.Samples, sample)
	return true
}

// CloseTransaction finalizes the transaction. Only the first call for an id succeeds;
// later calls return ErrAlreadyClosed and leave the transaction untouched. A nil endTime
// defaults to now.
func (s *StationStore) CloseTransaction(identity string, txID models.TransactionID, meterStop *float64, endTime *time.Time, reason string) (models.Transaction, error) {
	rec, ok := s.record(identity)
	if !ok {
		return models.Transaction{}, ErrStationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	tx, ok := rec.transactions[txID.String()]
	if !ok {
		return models.Transaction{}, ErrTransactionNotFound
	}
	if !tx.IsOpen() {
		return models.Transaction{}, ErrAlreadyClosed
	}

	end := s.now()
	if endTime != nil && !endTime.IsZero() {
		end = endTime.UTC()
	}
	tx.EndTime = &end
	if meterStop != nil {
		v := *meterStop
		tx.MeterStop = &v
	}
	tx.StopReason = reason
	return copyTransaction(tx), nil
}

// OpenTransactionIDs returns ids of open transactions on the connector. A non-nil
// evseID also requires the transaction to be on that EVSE, since 2.x connector ids are
// only unique within their EVSE.
func (s *StationStore) OpenTransactionIDs(identity string, connectorID int, evseID *int) []models.TransactionID {
	rec, ok := s.record(identity)
	if !ok {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var ids []models.TransactionID
	for _, key := range rec.order {
		tx := rec.transactions[key]
		if !tx.IsOpen() || tx.ConnectorID != connectorID {
			continue
		}
		if evseID != nil && (tx.EvseID == nil || *tx.EvseID != *evseID) {
			continue
		}
		ids = append(ids, tx.ID)
	}
	return ids
}

// Stations lists every known station sorted by identity.
func (s *StationStore) Stations() []models.StationSummary {
	s.mu.RLock()
	records := make([]*stationRecord, 0, len(s.stations))
	for _, rec := range s.stations {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	result := make([]models.StationSummary, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.summary())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result
}

// Station returns the summary of one station.
func (s *StationStore) Station(identity string) (models.StationSummary, error) {
	rec, ok := s.record(identity)
	if !ok {
		return models.StationSummary{}, ErrStationNotFound
	}
	return rec.summary(), nil
}

func (r *stationRecord) summary() models.StationSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.StationSummary{
		Identity:       r.identity,
		Protocol:       r.version.Dialect(),
		Subprotocol:    r.version,
		ConnectedAt:    r.connectedAt,
		ConnectorCount: len(r.connectors),
	}
}

// Connectors returns connector statuses ordered by connector id.
func (s *StationStore) Connectors(identity string) ([]models.ConnectorStatus, error) {
	rec, ok := s.record(identity)
	if !ok {
		return nil, ErrStationNotFound
	}
	rec.mu.Lock()
	result := make([]models.ConnectorStatus, 0, len(rec.connectors))
	for _, c := range rec.connectors {
		result = append(result, c)
	}
	rec.mu.Unlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ConnectorID < result[j].ConnectorID })
	return result, nil
}

// Transactions returns the station's transactions in the order they were opened.
func (s *StationStore) Transactions(identity string) ([]models.Transaction, error) {
	rec, ok := s.record(identity)
	if !ok {
		return nil, ErrStationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	result := make([]models.Transaction, 0, len(rec.order))
	for _, key := range rec.order {
		result = append(result, copyTransaction(rec.transactions[key]))
	}
	return result, nil
}

// Transaction returns a single transaction.
func (s *StationStore) Transaction(identity string, txID models.TransactionID) (models.Transaction, error) {
	rec, ok := s.record(identity)
	if !ok {
		return models.Transaction{}, ErrStationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	tx, ok := rec.transactions[txID.String()]
	if !ok {
		return models.Transaction{}, ErrTransactionNotFound
	}
	return copyTransaction(tx), nil
}

// MeterSamples returns samples in chronological order after applying the query.
func (s *StationStore) MeterSamples(identity string, txID models.TransactionID, q MeterQuery) ([]models.MeterSample, error) {
	rec, ok := s.record(identity)
	if !ok {
		return nil, ErrStationNotFound
	}
	rec.mu.Lock()
	tx, ok := rec.transactions[txID.String()]
	if !ok {
		rec.mu.Unlock()
		return nil, ErrTransactionNotFound
	}
	samples := make([]models.MeterSample, 0, len(tx.Samples))
	for _, sample := range tx.Samples {
		if q.Since != nil && sample.Timestamp.Before(*q.Since) {
			continue
		}
		samples = append(samples, sample)
	}
	rec.mu.Unlock()

	if q.Limit > 0 && len(samples) > q.Limit {
		samples = samples[len(samples)-q.Limit:]
	}
	return samples, nil
}

func copyTransaction(tx *models.Transaction) models.Transaction {
	out := *tx
	out.Samples = append([]models.MeterSample(nil), tx.Samples...)
	return out
}
