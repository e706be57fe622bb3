// Package registry is the shared catalog of tradable venues and their
// fee/slippage models and rolling performance statistics.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/safemath"
)

var (
	ErrInvalidVenueName  = errors.New("invalid venue name")
	ErrFeeTooHigh        = errors.New("venue fee rate too high")
	ErrVenueNotActive    = errors.New("venue is not active")
	ErrUnsupportedVenue  = errors.New("unsupported venue")
	ErrAlreadyRegistered = errors.New("venue already registered")
)

// entry wraps a venue with its own lock so metric updates on one venue never
// block readers or writers of another. The registry lock only guards map
// membership.
type entry struct {
	mu    sync.Mutex
	venue models.Venue
}

// Registry is a read-mostly keyed store of venues.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]*entry
	log    *logrus.Logger
}

// New creates an empty registry.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		venues: make(map[string]*entry),
		log:    log,
	}
}

// Register adds a venue. Stats start at zero with a 100% success rate.
func (r *Registry) Register(info models.VenueInfo) error {
	if info.Name == "" || info.ID == "" {
		return ErrInvalidVenueName
	}
	if info.FeeRateBps > safemath.BpsDenominator {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, info.FeeRateBps)
	}
	if !info.IsActive {
		return ErrVenueNotActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[info.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, info.ID)
	}
	r.venues[info.ID] = &entry{venue: models.Venue{
		VenueInfo:      info,
		SuccessRateBps: safemath.BpsDenominator,
		LastUpdated:    time.Now(),
	}}

	r.log.WithFields(logrus.Fields{
		"venue_id":     info.ID,
		"fee_rate_bps": info.FeeRateBps,
	}).Info("Venue registered")
	return nil
}

// UpdateMetrics accumulates volume and swap count and overwrites the success
// rate and average slippage snapshots. Callers pre-aggregate the latter two;
// the registry does not average across updates.
func (r *Registry) UpdateMetrics(venueID string, volume, swapCount uint64, successRateBps, avgSlippageBps uint16) error {
	e, err := r.entry(venueID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	totalVolume, err := safemath.Add(e.venue.TotalVolume, volume)
	if err != nil {
		return fmt.Errorf("venue %s volume counter: %w", venueID, err)
	}
	totalSwaps, err := safemath.Add(e.venue.TotalSwaps, swapCount)
	if err != nil {
		return fmt.Errorf("venue %s swap counter: %w", venueID, err)
	}
	e.venue.TotalVolume = totalVolume
	e.venue.TotalSwaps = totalSwaps
	e.venue.SuccessRateBps = successRateBps
	e.venue.AvgSlippageBps = avgSlippageBps
	e.venue.LastUpdated = time.Now()
	return nil
}

// Get returns a snapshot of the venue's current model for simulation. Unknown
// or inactive venues fail with ErrUnsupportedVenue.
func (r *Registry) Get(venueID string) (models.Venue, error) {
	e, err := r.entry(venueID)
	if err != nil {
		return models.Venue{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.venue.IsActive {
		return models.Venue{}, fmt.Errorf("%w: %s inactive", ErrUnsupportedVenue, venueID)
	}
	return e.venue, nil
}

// List returns snapshots of all active venues, for default route candidates
// and the admin surface.
func (r *Registry) List() []models.Venue {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.venues))
	for _, e := range r.venues {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Venue, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.venue.IsActive {
			out = append(out, e.venue)
		}
		e.mu.Unlock()
	}
	return out
}

// SetActive flips a venue's active flag.
func (r *Registry) SetActive(venueID string, active bool) error {
	e, err := r.entry(venueID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venue.IsActive = active
	e.venue.LastUpdated = time.Now()
	return nil
}

func (r *Registry) entry(venueID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.venues[venueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, venueID)
	}
	return e, nil
}
