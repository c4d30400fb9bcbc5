package api

import (
	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/documents"
	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/internal/parsing"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/prediction"
	"github.com/JaimeStill/aura/internal/structuring"
)

// Domain holds the stage systems hosted by this process. A stage that is not
// listed in pipeline.stages is nil.
type Domain struct {
	Documents   documents.System
	Parsing     *parsing.System
	Structuring *structuring.System
	Prediction  *prediction.System
}

// NewDomain creates the enabled stage systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	d := &Domain{}
	enabled := cfg.Pipeline.Enabled

	if enabled(config.StageIngestion) {
		d.Documents = documents.New(
			runtime.Host.DB,
			runtime.Storage,
			ledger.New(runtime.Host.DB, runtime.Logger),
			runtime.Host.Notifier,
			pipeline.NewCleaner(&cfg.Pipeline, runtime.Client, runtime.Logger),
			runtime.Logger,
			runtime.Pagination,
		)
	}
	if enabled(config.StageParsing) {
		d.Parsing = parsing.New(runtime.Host, &cfg.Parsing, runtime.Client)
	}
	if enabled(config.StageStructuring) {
		d.Structuring = structuring.New(runtime.Host, &cfg.Structuring, runtime.Client)
	}
	if enabled(config.StagePrediction) {
		d.Prediction = prediction.New(runtime.Host, &cfg.Prediction, runtime.Client)
	}

	return d
}

// Receivers returns the queue receivers of the hosted downstream stages.
func (d *Domain) Receivers() map[pipeline.Stage]pipeline.Receiver {
	r := make(map[pipeline.Stage]pipeline.Receiver)
	if d.Parsing != nil {
		r[pipeline.Parsing] = d.Parsing.Receiver()
	}
	if d.Structuring != nil {
		r[pipeline.Structuring] = d.Structuring.Receiver()
	}
	if d.Prediction != nil {
		r[pipeline.Prediction] = d.Prediction.Receiver()
	}
	return r
}

// Stages names the hosted stages in pipeline order.
func (d *Domain) Stages() []string {
	var s []string
	if d.Documents != nil {
		s = append(s, config.StageIngestion)
	}
	if d.Parsing != nil {
		s = append(s, config.StageParsing)
	}
	if d.Structuring != nil {
		s = append(s, config.StageStructuring)
	}
	if d.Prediction != nil {
		s = append(s, config.StagePrediction)
	}
	return s
}
