package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

const defaultTTL = 90 * time.Second

// Record is what dashboards read for a connected station.
type Record struct {
	ChargePointID string           `json:"chargePointId"`
	Protocol      protocol.Dialect `json:"protocol"`
	Subprotocol   protocol.Version `json:"subprotocol"`
	ConnectedAt   time.Time        `json:"connectedAt"`
	LastSeenAt    time.Time        `json:"lastSeenAt"`
}

type client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Directory mirrors connected stations into redis with a TTL.
type Directory struct {
	client client
	ttl    time.Duration
	now    func() time.Time
}

// NewDirectory returns redis-backed directory. Entries expire after ttl unless touched.
func NewDirectory(client *redis.Client, ttl time.Duration) *Directory {
	return newDirectory(client, ttl)
}

func newDirectory(c client, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Directory{
		client: c,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (d *Directory) key(identity string) string {
	return fmt.Sprintf("ocpp:presence:%s", models.StationKey(identity))
}

// Touch writes or refreshes the station record.
func (d *Directory) Touch(ctx context.Context, identity string, version protocol.Version, connectedAt time.Time) error {
	data, err := json.Marshal(Record{
		ChargePointID: identity,
		Protocol:      version.Dialect(),
		Subprotocol:   version,
		ConnectedAt:   connectedAt,
		LastSeenAt:    d.now(),
	})
	if err != nil {
		return err
	}
	return d.client.Set(ctx, d.key(identity), data, d.ttl).Err()
}

// Get returns the record for identity.
func (d *Directory) Get(ctx context.Context, identity string) (*Record, error) {
	result, err := d.client.Get(ctx, d.key(identity)).Result()
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Remove deletes the record.
func (d *Directory) Remove(ctx context.Context, identity string) error {
	return d.client.Del(ctx, d.key(identity)).Err()
}
