package funnels

import (
	"github.com/spacearena/lead-pipeline/pipeline"
)

type Handler struct {
	Stages *pipeline.Registry
	Funnel *pipeline.FunnelAggregator
}
