package ttlcache

import (
	"encoding/json"
	"time"
)

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Name      string
	Size      int
	Capacity  int
	TTL       time.Duration
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

// HitRate returns hits/(hits+misses). It is undefined before the first lookup.
func (s Stats) HitRate() (float64, bool) {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0, false
	}
	return float64(s.Hits) / float64(total), true
}

func (s Stats) MarshalJSON() ([]byte, error) {
	type view struct {
		Name      string   `json:"name"`
		Size      int      `json:"size"`
		Capacity  int      `json:"capacity"`
		TTL       string   `json:"ttl"`
		Hits      uint64   `json:"hits"`
		Misses    uint64   `json:"misses"`
		Evictions uint64   `json:"evictions"`
		Expired   uint64   `json:"expired"`
		HitRate   *float64 `json:"hit_rate,omitempty"`
	}
	v := view{
		Name:      s.Name,
		Size:      s.Size,
		Capacity:  s.Capacity,
		TTL:       s.TTL.String(),
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
		Expired:   s.Expired,
	}
	if rate, ok := s.HitRate(); ok {
		v.HitRate = &rate
	}
	return json.Marshal(v)
}

func (s *Stats) UnmarshalJSON(data []byte) error {
	var v struct {
		Name      string `json:"name"`
		Size      int    `json:"size"`
		Capacity  int    `json:"capacity"`
		TTL       string `json:"ttl"`
		Hits      uint64 `json:"hits"`
		Misses    uint64 `json:"misses"`
		Evictions uint64 `json:"evictions"`
		Expired   uint64 `json:"expired"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var ttl time.Duration
	if v.TTL != "" {
		d, err := time.ParseDuration(v.TTL)
		if err != nil {
			return err
		}
		ttl = d
	}
	*s = Stats{
		Name:      v.Name,
		Size:      v.Size,
		Capacity:  v.Capacity,
		TTL:       ttl,
		Hits:      v.Hits,
		Misses:    v.Misses,
		Evictions: v.Evictions,
		Expired:   v.Expired,
	}
	return nil
}
