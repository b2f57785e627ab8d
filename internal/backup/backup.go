// Package backup persists raw provider payloads as write-once artifacts so a
// run can be replayed after a transform or load failure.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

var (
	ErrExists   = errors.New("backup artifact already exists")
	ErrNotFound = errors.New("backup artifact not found")
	ErrCorrupt  = errors.New("backup artifact checksum mismatch")
)

const (
	TimestampLayout = "20060102T150405Z"

	currentName  = "current"
	forecastName = "forecast"
)

// Artifact is the raw output of one extraction.
type Artifact struct {
	Ref         string          `json:"ref"`
	Location    models.Location `json:"location"`
	CollectedAt time.Time       `json:"collected_at"`
	Current     *models.Payload `json:"current,omitempty"`
	Forecast    *models.Payload `json:"forecast,omitempty"`
}

// Size is the total number of raw bytes held by the artifact.
func (a *Artifact) Size() int {
	n := 0
	for _, p := range a.payloads() {
		n += len(p.payload.Body)
	}
	return n
}

type namedPayload struct {
	name    string
	payload *models.Payload
}

func (a *Artifact) payloads() []namedPayload {
	var out []namedPayload
	if a.Current != nil {
		out = append(out, namedPayload{currentName, a.Current})
	}
	if a.Forecast != nil {
		out = append(out, namedPayload{forecastName, a.Forecast})
	}
	return out
}

func (a *Artifact) set(name string, p *models.Payload) error {
	switch name {
	case currentName:
		a.Current = p
	case forecastName:
		a.Forecast = p
	default:
		return fmt.Errorf("unknown payload %q in artifact", name)
	}
	return nil
}

// Key derives the storage key from location and collection time.
func Key(loc models.Location, collectedAt time.Time) string {
	return loc.Key() + "/" + collectedAt.UTC().Format(TimestampLayout)
}

// Store is a write-once artifact store.
type Store interface {
	// Save writes every payload of the artifact or nothing, and returns its ref.
	Save(ctx context.Context, a *Artifact) (string, error)
	Load(ctx context.Context, ref string) (*Artifact, error)
	List(ctx context.Context, loc models.Location) ([]string, error)
}

func validate(a *Artifact) error {
	if a == nil || (a.Current == nil && a.Forecast == nil) {
		return errors.New("artifact has no payloads")
	}
	if a.CollectedAt.IsZero() {
		return errors.New("artifact has no collection time")
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
