// Package availability computes eligible booking dates, the bookable
// time slots, and the daily write-blackout window.
package availability

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anit-serv/greenroom/internal/models"
	"gorm.io/gorm"
)

// DefaultTTL is how long a loaded availability config is served before
// the store is consulted again.
const DefaultTTL = 5 * time.Minute

// Defaults used when no AvailabilityConfig row exists yet. The first
// read persists them back so subsequent reads are deterministic.
var (
	DefaultWeekdays = []time.Weekday{time.Wednesday, time.Thursday, time.Saturday}

	DefaultTimeSlots = []SlotOption{
		{Label: "09:00-12:00", Value: "09:00-12:00"},
		{Label: "13:00-17:00", Value: "13:00-17:00"},
		{Label: "18:00-22:00", Value: "18:00-22:00"},
	}
)

// SlotOption is one bookable time range: display label plus the
// canonical value used in slot keys.
type SlotOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Settings is a decoded availability configuration.
type Settings struct {
	Weekdays  []time.Weekday
	TimeSlots []SlotOption
}

// allowed reports whether d is on the weekday allow-list.
func (s Settings) allowed(d time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// ConfigCache serves the single AvailabilityConfig record with an
// explicit TTL. Any concurrent handler may read it; refresh is a pure
// function of "now".
type ConfigCache struct {
	db  *gorm.DB
	ttl time.Duration

	mu       sync.Mutex
	loadedAt time.Time
	settings Settings
}

// NewConfigCache creates a ConfigCache. A ttl of 0 uses DefaultTTL.
func NewConfigCache(db *gorm.DB, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ConfigCache{db: db, ttl: ttl}
}

// Get returns the current settings, loading from the store when the
// cached copy is older than the TTL. A missing record is created with
// the defaults before returning them.
func (c *ConfigCache) Get(now time.Time) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loadedAt.IsZero() && now.Sub(c.loadedAt) < c.ttl {
		return c.settings, nil
	}

	settings, err := c.load()
	if err != nil {
		return Settings{}, err
	}
	c.settings = settings
	c.loadedAt = now
	return settings, nil
}

// Invalidate discards the cached copy so the next Get hits the store.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
}

// load reads the config row, seeding defaults when absent.
func (c *ConfigCache) load() (Settings, error) {
	var rec models.AvailabilityConfig
	err := c.db.First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return c.seedDefaults()
	}
	if err != nil {
		return Settings{}, fmt.Errorf("availability: load config: %w", err)
	}

	var weekdayNums []int
	if err := json.Unmarshal([]byte(rec.Weekdays), &weekdayNums); err != nil {
		return Settings{}, fmt.Errorf("availability: decode weekdays: %w", err)
	}
	var slots []SlotOption
	if err := json.Unmarshal([]byte(rec.TimeSlots), &slots); err != nil {
		return Settings{}, fmt.Errorf("availability: decode time slots: %w", err)
	}

	settings := Settings{TimeSlots: slots}
	for _, n := range weekdayNums {
		settings.Weekdays = append(settings.Weekdays, time.Weekday(n))
	}
	return settings, nil
}

// seedDefaults persists the default configuration and returns it.
func (c *ConfigCache) seedDefaults() (Settings, error) {
	weekdayNums := make([]int, len(DefaultWeekdays))
	for i, w := range DefaultWeekdays {
		weekdayNums[i] = int(w)
	}
	weekdaysJSON, err := json.Marshal(weekdayNums)
	if err != nil {
		return Settings{}, fmt.Errorf("availability: encode default weekdays: %w", err)
	}
	slotsJSON, err := json.Marshal(DefaultTimeSlots)
	if err != nil {
		return Settings{}, fmt.Errorf("availability: encode default slots: %w", err)
	}

	rec := models.AvailabilityConfig{
		Weekdays:  string(weekdaysJSON),
		TimeSlots: string(slotsJSON),
	}
	if err := c.db.Create(&rec).Error; err != nil {
		return Settings{}, fmt.Errorf("availability: seed defaults: %w", err)
	}

	return Settings{
		Weekdays:  append([]time.Weekday(nil), DefaultWeekdays...),
		TimeSlots: append([]SlotOption(nil), DefaultTimeSlots...),
	}, nil
}
