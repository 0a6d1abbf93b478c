package domain

import "time"

// ResearchBundle is the unit of work: a guest/topic context plus the source URLs
// that are ingested and later turned into a research brief.
type ResearchBundle struct {
	ID                string    `bson:"_id,omitempty" json:"id"`
	GuestName         string    `bson:"guestName" json:"guestName"`
	Company           string    `bson:"company" json:"company"`
	Topic             string    `bson:"topic" json:"topic"`
	Context           string    `bson:"context" json:"context"`
	URLs              []string  `bson:"urls" json:"urls"`
	Processed         bool      `bson:"processed" json:"processed"`
	ResearchBriefText string    `bson:"researchBriefText,omitempty" json:"researchBriefText,omitempty"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
}

// CandidateQuestion holds questions mined for a bundle by an upstream collaborator.
type CandidateQuestion struct {
	BundleID  string `bson:"bundleId" json:"bundleId"`
	Questions string `bson:"questions" json:"questions"`
}
