package service

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

func floatPtr(v float64) *float64 { return &v }

func openSample(t *testing.T, store *StationStore, identity string, id models.TransactionID) {
	t.Helper()
	err := store.OpenTransaction(identity, models.Transaction{
		ID:          id,
		ConnectorID: 1,
		IdTag:       "abc",
		MeterStart:  floatPtr(1000),
	})
	if err != nil {
		t.Fatalf("open transaction: %v", err)
	}
}

func TestStationStoreIsCaseInsensitive(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version16)

	if err := store.UpdateConnectorStatus("cp001", models.ConnectorStatus{ConnectorID: 1, Status: "Available"}); err != nil {
		t.Fatalf("update connector: %v", err)
	}
	summary, err := store.Station("Cp001")
	if err != nil {
		t.Fatalf("station: %v", err)
	}
	if summary.Identity != "CP001" {
		t.Fatalf("expected original identity to be kept, got %s", summary.Identity)
	}
	if summary.ConnectorCount != 1 {
		t.Fatalf("expected 1 connector, got %d", summary.ConnectorCount)
	}
}

func TestStationStoreCloseTransactionOnlyOnce(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version16)
	id := models.IntTransactionID(store.NextTransactionID())
	openSample(t, store, "CP001", id)

	end := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	closed, err := store.CloseTransaction("CP001", id, floatPtr(5000), &end, "Local")
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if closed.MeterStop == nil || *closed.MeterStop != 5000 {
		t.Fatalf("expected meterStop 5000, got %v", closed.MeterStop)
	}
	if closed.EndTime == nil || !closed.EndTime.Equal(end) {
		t.Fatalf("expected end time %s, got %v", end, closed.EndTime)
	}

	later := end.Add(time.Hour)
	if _, err := store.CloseTransaction("CP001", id, floatPtr(9999), &later, ""); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}

	tx, err := store.Transaction("cp001", id)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if !tx.EndTime.Equal(end) || *tx.MeterStop != 5000 {
		t.Fatalf("second close must not alter the transaction: %+v", tx)
	}
}

func TestStationStoreConcurrentCloseHasSingleWinner(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version201)
	id := models.StringTransactionID("tx-race")
	openSample(t, store, "CP001", id)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CloseTransaction("CP001", id, nil, nil, ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful close, got %d", wins)
	}
}

func TestStationStoreCloseDefaultsEndTime(t *testing.T) {
	store := NewStationStore()
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	store.RegisterStation("CP001", protocol.Version16)
	id := models.IntTransactionID(7)
	openSample(t, store, "CP001", id)

	tx, err := store.CloseTransaction("CP001", id, nil, nil, "")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !tx.EndTime.Equal(fixed) {
		t.Fatalf("expected default end time %s, got %s", fixed, tx.EndTime)
	}
	if tx.MeterStop != nil {
		t.Fatalf("expected meterStop to stay unset, got %v", *tx.MeterStop)
	}
}

func TestStationStoreUnknownEntities(t *testing.T) {
	store := NewStationStore()

	if ok := store.AppendMeterSample("ghost", models.IntTransactionID(1), models.MeterSample{}); ok {
		t.Fatalf("append to unknown station must be dropped")
	}
	if _, err := store.Transactions("ghost"); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("expected ErrStationNotFound, got %v", err)
	}

	store.RegisterStation("CP001", protocol.Version16)
	if ok := store.AppendMeterSample("CP001", models.IntTransactionID(1), models.MeterSample{}); ok {
		t.Fatalf("append to unknown transaction must be dropped")
	}
	if _, err := store.CloseTransaction("CP001", models.IntTransactionID(1), nil, nil, ""); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := store.MeterSamples("CP001", models.IntTransactionID(1), MeterQuery{}); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	txs, err := store.Transactions("CP001")
	if err != nil || len(txs) != 0 {
		t.Fatalf("expected no transactions, got %v (%v)", txs, err)
	}
}

func TestStationStoreMeterSamplesLimitAndSince(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version16)
	id := models.IntTransactionID(1)
	openSample(t, store, "CP001", id)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.AppendMeterSample("CP001", id, models.MeterSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			RawValues: json.RawMessage(`[{"value":"1"}]`),
		})
	}

	all, _ := store.MeterSamples("CP001", id, MeterQuery{})
	if len(all) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(all))
	}

	last2, _ := store.MeterSamples("CP001", id, MeterQuery{Limit: 2})
	if len(last2) != 2 || !last2[0].Timestamp.Equal(base.Add(3*time.Minute)) || !last2[1].Timestamp.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("expected the two most recent samples in order, got %+v", last2)
	}

	since := base.Add(2 * time.Minute)
	fromTwo, _ := store.MeterSamples("CP001", id, MeterQuery{Since: &since})
	if len(fromTwo) != 3 || !fromTwo[0].Timestamp.Equal(since) {
		t.Fatalf("expected samples at or after %s, got %+v", since, fromTwo)
	}

	combined, _ := store.MeterSamples("CP001", id, MeterQuery{Since: &since, Limit: 1})
	if len(combined) != 1 || !combined[0].Timestamp.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("expected only the latest sample, got %+v", combined)
	}
}

func TestStationStoreReconnectResetsRecord(t *testing.T) {
	store := NewStationStore()
	oldGen := store.RegisterStation("CP001", protocol.Version16)
	openSample(t, store, "CP001", models.IntTransactionID(1))

	newGen := store.RegisterStation("cp001", protocol.Version201)
	txs, err := store.Transactions("CP001")
	if err != nil || len(txs) != 0 {
		t.Fatalf("expected fresh record after reconnect, got %v (%v)", txs, err)
	}

	if store.RemoveStation("CP001", oldGen) {
		t.Fatalf("stale generation must not remove the new record")
	}
	if _, err := store.Station("CP001"); err != nil {
		t.Fatalf("record should survive stale removal: %v", err)
	}
	if !store.RemoveStation("CP001", newGen) {
		t.Fatalf("expected current generation removal to succeed")
	}
	if _, err := store.Station("CP001"); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("expected station removed, got %v", err)
	}
}

func TestStationStoreTransactionIDsAreMonotonic(t *testing.T) {
	store := NewStationStore()
	seen := make(map[int]struct{})
	prev := 0
	for i := 0; i < 100; i++ {
		id := store.NextTransactionID()
		if id <= prev {
			t.Fatalf("expected increasing ids, got %d after %d", id, prev)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
		prev = id
	}
}

func TestStationStoreOpenTransactionOverwritesSameID(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version201)
	id := models.StringTransactionID("abc")
	openSample(t, store, "CP001", id)
	if err := store.OpenTransaction("CP001", models.Transaction{ID: id, ConnectorID: 2, IdTag: "other"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	txs, _ := store.Transactions("CP001")
	if len(txs) != 1 || txs[0].ConnectorID != 2 {
		t.Fatalf("expected single overwritten transaction, got %+v", txs)
	}
	if open := store.OpenTransactionIDs("CP001", 2, nil); len(open) != 1 || open[0] != id {
		t.Fatalf("expected open transaction on connector 2, got %v", open)
	}
}

func TestStationStoreAppendAfterCloseIsDropped(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP001", protocol.Version16)
	id := models.IntTransactionID(store.NextTransactionID())
	if err := store.OpenTransaction("CP001", models.Transaction{ID: id, ConnectorID: 1}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ok := store.AppendMeterSample("CP001", id, models.MeterSample{RawValues: json.RawMessage(`[]`)}); !ok {
		t.Fatalf("append to open transaction must succeed")
	}
	if _, err := store.CloseTransaction("CP001", id, nil, nil, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	if ok := store.AppendMeterSample("CP001", id, models.MeterSample{RawValues: json.RawMessage(`[]`)}); ok {
		t.Fatalf("append to closed transaction must be dropped")
	}
	tx, _ := store.Transaction("CP001", id)
	if len(tx.Samples) != 1 {
		t.Fatalf("closed transaction samples changed, got %d", len(tx.Samples))
	}
}

func TestStationStoreOpenTransactionIDsByEvse(t *testing.T) {
	store := NewStationStore()
	store.RegisterStation("CP201", protocol.Version201)
	evse1, evse2 := 1, 2
	onEvse1 := models.StringTransactionID("tx-evse1")
	onEvse2 := models.StringTransactionID("tx-evse2")
	_ = store.OpenTransaction("CP201", models.Transaction{ID: onEvse1, ConnectorID: 1, EvseID: &evse1})
	_ = store.OpenTransaction("CP201", models.Transaction{ID: onEvse2, ConnectorID: 1, EvseID: &evse2})

	if open := store.OpenTransactionIDs("CP201", 1, &evse2); len(open) != 1 || open[0] != onEvse2 {
		t.Fatalf("expected only the evse 2 transaction, got %v", open)
	}
	if open := store.OpenTransactionIDs("CP201", 1, nil); len(open) != 2 {
		t.Fatalf("expected both transactions without an evse filter, got %v", open)
	}
}
