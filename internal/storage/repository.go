package storage

// Repository is the relational store behind the survey. SaveParticipant is an
// idempotent upsert keyed by participant id; calling it after every step
// transition with the full record is the expected access pattern.
type Repository interface {
	SaveParticipant(rec *ParticipantRecord) error

	GetParticipant(id string) (*ParticipantRecord, error)

	// FindByPanelID lists every session started under the same external
	// panel id, ordered by start time. Used for duplicate detection.
	FindByPanelID(panelID string) ([]ParticipantSummary, error)

	QualityMetrics() (*QualityMetrics, error)

	ParticipantsWithFlags() ([]ParticipantFlags, error)

	// Bulk reads for the CSV export command.
	AllParticipants() ([]ParticipantRecord, error)
	AllEvaluations() ([]EvaluationRecord, error)
	AllPostSurveys() ([]PostSurveyRecord, error)

	Close() error
}
