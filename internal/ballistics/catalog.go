package ballistics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "embed"
)

// ShotType enumerates the selectable shells.
type ShotType int

const (
	ShotLob    ShotType = 1
	ShotLaser  ShotType = 2
	ShotTriple ShotType = 3
)

// String returns the catalog key of the shot.
func (s ShotType) String() string {
	switch s {
	case ShotLob:
		return "lob"
	case ShotLaser:
		return "laser"
	case ShotTriple:
		return "triple"
	default:
		return "unknown"
	}
}

// ParseShotType accepts either the catalog name or the numeric picker index.
func ParseShotType(raw string) (ShotType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "lob":
		return ShotLob, nil
	case "laser":
		return ShotLaser, nil
	case "triple":
		return ShotTriple, nil
	}
	if value, err := strconv.Atoi(trimmed); err == nil {
		shot := ShotType(value)
		if _, ok := Catalog().Shots[shot.String()]; ok {
			return shot, nil
		}
	}
	return 0, fmt.Errorf("unknown shot type %q", raw)
}

// ShotProfile holds the balance values for one shot type.
type ShotProfile struct {
	Type                 ShotType `json:"type"`
	ExplosionRadius      int      `json:"explosionRadius"`
	Damage               int      `json:"damage"`
	ForceMultiplier      float64  `json:"forceMultiplier"`
	Volley               int      `json:"volley"`
	VolleyStaggerSeconds float64  `json:"volleyStaggerSeconds,omitempty"`
}

// VolleyStagger converts the configured stagger into a duration.
func (p ShotProfile) VolleyStagger() time.Duration {
	if !(p.VolleyStaggerSeconds > 0) {
		return 0
	}
	return time.Duration(p.VolleyStaggerSeconds * float64(time.Second))
}

// ShotCatalog mirrors the structure of shot_catalog.json.
type ShotCatalog struct {
	ForceScale             float64                `json:"forceScale"`
	MaxLaunchMagnitudeBase float64                `json:"maxLaunchMagnitudeBase"`
	SpawnOffset            float64                `json:"spawnOffset"`
	Damping                float64                `json:"damping"`
	Shots                  map[string]ShotProfile `json:"shots"`
}

// MaxLaunchMagnitude is the clamp applied to the base launch force, sqrt(2) x base.
func (c ShotCatalog) MaxLaunchMagnitude() float64 {
	return math.Sqrt2 * c.MaxLaunchMagnitudeBase
}

// Profile returns the balance values for the shot type.
func (c ShotCatalog) Profile(shot ShotType) (ShotProfile, bool) {
	profile, ok := c.Shots[shot.String()]
	return profile, ok
}

// Clone produces a copy so callers cannot mutate the cached catalog.
func (c ShotCatalog) Clone() ShotCatalog {
	clone := c
	clone.Shots = make(map[string]ShotProfile, len(c.Shots))
	for key, value := range c.Shots {
		clone.Shots[key] = value
	}
	return clone
}

//go:embed shot_catalog.json
var shotCatalogPayload []byte

var (
	shotCatalogOnce sync.Once
	shotCatalogData ShotCatalog
	shotCatalogErr  error
)

// Catalog exposes the parsed shot catalog.
func Catalog() ShotCatalog {
	shotCatalogOnce.Do(func() {
		//1.- Parse the embedded payload once so concurrent callers share the same data.
		shotCatalogErr = json.Unmarshal(shotCatalogPayload, &shotCatalogData)
	})
	//2.- A broken catalog is a build defect; fail loudly rather than fire with zero damage.
	if shotCatalogErr != nil {
		panic(shotCatalogErr)
	}
	return shotCatalogData.Clone()
}
