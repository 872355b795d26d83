// Package memory is a process-local store used by the memory driver and by tests
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

// Store holds the three repositories behind a single lock
type Store struct {
	mu       sync.RWMutex
	brokers  map[string]mqtmodels.Broker
	devices  map[string]mqtmodels.PlantDevice
	readings []mqtmodels.Reading
}

func NewStore() *Store {
	return &Store{
		brokers: make(map[string]mqtmodels.Broker),
		devices: make(map[string]mqtmodels.PlantDevice),
	}
}

func (s *Store) Brokers() *BrokerRepository   { return &BrokerRepository{s: s} }
func (s *Store) Devices() *DeviceRepository   { return &DeviceRepository{s: s} }
func (s *Store) Readings() *ReadingRepository { return &ReadingRepository{s: s} }

// --- brokers ---

type BrokerRepository struct{ s *Store }

func (r *BrokerRepository) FindActive(ctx context.Context) ([]mqtmodels.Broker, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]mqtmodels.Broker, 0)
	for _, b := range r.s.brokers {
		if b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL() < out[j].URL() })
	return out, nil
}

func (r *BrokerRepository) FindByID(ctx context.Context, id string) (*mqtmodels.Broker, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.brokers[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &b, nil
}

func (r *BrokerRepository) FindByHost(ctx context.Context, host string) (*mqtmodels.Broker, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found *mqtmodels.Broker
	for _, b := range r.s.brokers {
		if b.Host != host {
			continue
		}
		b := b
		if found == nil || (b.Active && !found.Active) {
			found = &b
		}
	}
	if found == nil {
		return nil, interfaces.ErrNotFound
	}
	return found, nil
}

func (r *BrokerRepository) Count(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.brokers)), nil
}

func (r *BrokerRepository) Save(ctx context.Context, broker *mqtmodels.Broker) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if broker.ID == "" {
		broker.ID = uuid.New().String()
	}
	if broker.CreatedAt.IsZero() {
		broker.CreatedAt = time.Now().UTC()
	}
	r.s.brokers[broker.ID] = *broker
	return nil
}

// --- devices ---

type DeviceRepository struct{ s *Store }

func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*mqtmodels.PlantDevice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.devices[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &d, nil
}

func (r *DeviceRepository) FindByPlantID(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error) {
	return r.findOne(func(d mqtmodels.PlantDevice) bool { return d.PlantID == plantID })
}

func (r *DeviceRepository) FindByMAC(ctx context.Context, mac string) (*mqtmodels.PlantDevice, error) {
	return r.findOne(func(d mqtmodels.PlantDevice) bool { return d.MacAddress == mac })
}

// findOne prefers an active match, mirroring the database drivers
func (r *DeviceRepository) findOne(match func(mqtmodels.PlantDevice) bool) (*mqtmodels.PlantDevice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found *mqtmodels.PlantDevice
	for _, d := range r.s.devices {
		if !match(d) {
			continue
		}
		d := d
		if found == nil || (d.Active && !found.Active) {
			found = &d
		}
	}
	if found == nil {
		return nil, interfaces.ErrNotFound
	}
	return found, nil
}

func (r *DeviceRepository) ExistsByPlantID(ctx context.Context, plantID string) (bool, error) {
	_, err := r.FindByPlantID(ctx, plantID)
	if err == interfaces.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *DeviceRepository) FindAvailable(ctx context.Context) ([]mqtmodels.PlantDevice, error) {
	return r.findMany(func(d mqtmodels.PlantDevice) bool { return d.OwnerID == "" && d.MacAddress != "" }), nil
}

func (r *DeviceRepository) FindByOwner(ctx context.Context, ownerID string) ([]mqtmodels.PlantDevice, error) {
	return r.findMany(func(d mqtmodels.PlantDevice) bool { return d.OwnerID == ownerID }), nil
}

func (r *DeviceRepository) findMany(match func(mqtmodels.PlantDevice) bool) []mqtmodels.PlantDevice {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]mqtmodels.PlantDevice, 0)
	for _, d := range r.s.devices {
		if match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *DeviceRepository) Save(ctx context.Context, device *mqtmodels.PlantDevice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if device.ID != "" {
		if _, ok := r.s.devices[device.ID]; !ok {
			return interfaces.ErrNotFound
		}
	}

	for id, other := range r.s.devices {
		if id == device.ID {
			continue
		}
		if device.MacAddress != "" && other.MacAddress == device.MacAddress {
			return interfaces.ErrDuplicate
		}
		if device.Active && other.Active && other.PlantID == device.PlantID {
			return interfaces.ErrDuplicate
		}
	}

	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	r.s.devices[device.ID] = *device
	return nil
}

func (r *DeviceRepository) TouchHeartbeat(ctx context.Context, plantID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, d := range r.s.devices {
		if d.Active && d.PlantID == plantID {
			at := at.UTC()
			d.LastDataReceived = &at
			r.s.devices[id] = d
			return nil
		}
	}
	return interfaces.ErrNotFound
}

// --- readings ---

type ReadingRepository struct{ s *Store }

func (r *ReadingRepository) Insert(ctx context.Context, reading *mqtmodels.Reading) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	r.s.readings = append(r.s.readings, *reading)
	return nil
}

func (r *ReadingRepository) LatestValid(ctx context.Context, plantID string) (*mqtmodels.Reading, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *mqtmodels.Reading
	for i := range r.s.readings {
		rd := r.s.readings[i]
		if rd.PlantID != plantID || rd.QcStatus != mqtmodels.QcValid {
			continue
		}
		if latest == nil || rd.Timestamp.After(latest.Timestamp) {
			latest = &rd
		}
	}
	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	return latest, nil
}

func (r *ReadingRepository) ListByPlant(ctx context.Context, plantID string, page, pageSize int) (*interfaces.PaginationResult, error) {
	r.s.mu.RLock()
	matched := make([]mqtmodels.Reading, 0)
	for _, rd := range r.s.readings {
		if rd.PlantID == plantID {
			matched = append(matched, rd)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	result := &interfaces.PaginationResult{Items: matched[start:end], Total: len(matched)}
	if end < len(matched) {
		next := page + 1
		result.NextPage = &next
	}
	return result, nil
}

// All returns a snapshot of every stored reading, oldest first
func (r *ReadingRepository) All() []mqtmodels.Reading {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]mqtmodels.Reading(nil), r.s.readings...)
}
