// Package pipeline connects the stages: it hands payloads to the next stage,
// reports status back to ingestion, and fans out deletion cleanup.
package pipeline

import (
	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/ledger"
)

// Stage identifies a pipeline stage.
type Stage string

const (
	Ingestion   Stage = config.StageIngestion
	Parsing     Stage = config.StageParsing
	Structuring Stage = config.StageStructuring
	Prediction  Stage = config.StagePrediction
)

// Downstream lists the stages that keep per-document results.
var Downstream = []Stage{Parsing, Structuring, Prediction}

// Prefix returns the route prefix the stage is mounted under.
func (s Stage) Prefix() string {
	switch s {
	case Ingestion:
		return "/documents"
	case Prediction:
		return "/predictions"
	default:
		return "/" + string(s)
	}
}

// Service returns the ledger service name of the stage.
func (s Stage) Service() ledger.Service {
	switch s {
	case Parsing:
		return ledger.ServiceParsing
	case Structuring:
		return ledger.ServiceStructuring
	case Prediction:
		return ledger.ServicePrediction
	default:
		return ledger.ServiceIngestion
	}
}

// Completed returns the coarse document status reached when the stage
// completes.
func (s Stage) Completed() ledger.DocumentStatus {
	switch s {
	case Parsing:
		return ledger.DocumentParsed
	case Structuring:
		return ledger.DocumentStructured
	case Prediction:
		return ledger.DocumentPredicted
	default:
		return ledger.DocumentUploaded
	}
}

// Previous returns the stage that feeds s.
func (s Stage) Previous() Stage {
	switch s {
	case Structuring:
		return Parsing
	case Prediction:
		return Structuring
	default:
		return Ingestion
	}
}

// ParseRequest asks the parsing stage to extract text from a stored file.
type ParseRequest struct {
	DocumentID uuid.UUID `json:"document_id"`
	FilePath   string    `json:"file_path"`
	Filename   string    `json:"filename"`
}

// StructureRequest asks the structuring stage to structure extracted text.
type StructureRequest struct {
	DocumentID    uuid.UUID `json:"document_id"`
	ExtractedText string    `json:"extracted_text"`
}

// PredictRequest asks the prediction stage to classify structured data.
type PredictRequest struct {
	DocumentID     uuid.UUID               `json:"document_id"`
	StructuringID  uuid.UUID               `json:"structuring_id"`
	StructuredData clinical.StructuredData `json:"structured_data"`
}
