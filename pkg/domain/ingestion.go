package domain

import "time"

// IngestionState is the lifecycle of one ingestion run for a bundle.
type IngestionState string

const (
	IngestionRunning  IngestionState = "running"
	IngestionComplete IngestionState = "complete"
)

// URLFailure records why a single source URL produced no content.
type URLFailure struct {
	URL   string `bson:"url" json:"url"`
	Error string `bson:"error" json:"error"`
}

// IngestionStatus is written by the ingestion stage so brief synthesis can tell
// when a bundle's chunks have settled.
type IngestionStatus struct {
	BundleID   string         `bson:"_id" json:"bundleId"`
	State      IngestionState `bson:"state" json:"state"`
	Published  int            `bson:"published" json:"published"`
	Failures   []URLFailure   `bson:"failures,omitempty" json:"failures,omitempty"`
	StartedAt  time.Time      `bson:"startedAt" json:"startedAt"`
	FinishedAt time.Time      `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
}
